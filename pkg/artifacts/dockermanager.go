// Package artifacts moves build artifacts between job containers and
// the run's artifact directory.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/opnlabs/conveyor/pkg/store"
)

type ArtifactManager interface {
	// PublishArtifact takes in a jobID and path inside the job and
	// moves the artifact to the artifact store and returns a key
	// that references the artifact
	PublishArtifact(jobID, path string) (key string, err error)

	// RetrieveArtifact takes in a jobID and a keys slice and moves the
	// artifacts into the job at their original paths. If keys is nil,
	// all published artifacts are moved into the job.
	RetrieveArtifact(jobID string, keys []string) error
}

// DockerArtifactsManager copies artifacts out of finished containers
// into artifactsDir as tar files, and back into dependent containers.
type DockerArtifactsManager struct {
	cli           *client.Client
	artifactStore store.Store
	artifactsDir  string
}

func NewDockerArtifactsManager(artifactsDir string) (ArtifactManager, error) {
	// Clear previous artifacts and create a new directory
	if _, err := os.Stat(artifactsDir); err == nil {
		if err := os.RemoveAll(artifactsDir); err != nil {
			return nil, fmt.Errorf("could not remove %s directory: %w", artifactsDir, err)
		}
	}

	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create %s directory: %w", artifactsDir, err)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create docker client: %w", err)
	}

	return &DockerArtifactsManager{
		cli:           cli,
		artifactStore: store.NewMemStore(),
		artifactsDir:  artifactsDir,
	}, nil
}

func (d *DockerArtifactsManager) PublishArtifact(jobID, path string) (string, error) {
	ctx := context.Background()
	r, _, err := d.cli.CopyFromContainer(ctx, jobID, path)
	if err != nil {
		return "", fmt.Errorf("could not copy artifact %s from container %s: %v", path, jobID, err)
	}
	defer r.Close()

	f, err := os.CreateTemp(d.artifactsDir, "artifacts-*.tar")
	if err != nil {
		return "", fmt.Errorf("could not create artifacts tar file: %v", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("could not copy file contents from container %s to artifact tar: %v", jobID, err)
	}

	_, fname := filepath.Split(f.Name())
	return fname, d.artifactStore.Set(strings.TrimSpace(fname), filepath.Dir(path))
}

func (d *DockerArtifactsManager) RetrieveArtifact(jobID string, keys []string) error {
	ctx := context.Background()

	if len(keys) > 0 {
		for _, v := range keys {
			if err := d.copyIntoContainer(ctx, jobID, strings.TrimSpace(v)); err != nil {
				return err
			}
		}
		return nil
	}

	return filepath.Walk(d.artifactsDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.Contains(info.Name(), ".tar") {
			return nil
		}
		return d.copyIntoContainer(ctx, jobID, info.Name())
	})
}

func (d *DockerArtifactsManager) copyIntoContainer(ctx context.Context, jobID, key string) error {
	originalPath, err := d.artifactStore.Get(key)
	if err != nil {
		return fmt.Errorf("could not find original path for artifact %s: %v", key, err)
	}

	f, err := os.Open(filepath.Join(d.artifactsDir, filepath.Base(key)))
	if err != nil {
		return fmt.Errorf("could not open artifact %s: %v", key, err)
	}
	defer f.Close()

	if err := d.cli.CopyToContainer(ctx, jobID, originalPath.(string), f, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("could not copy artifact %s to container %s: %v", key, jobID, err)
	}
	return nil
}
