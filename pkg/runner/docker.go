// Package runner executes planned jobs locally in docker containers.
package runner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/opnlabs/conveyor/pkg/artifacts"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/utils"
)

const (
	BUILD_DIR     = ".conveyor"
	ARTIFACTS_DIR = ".artifacts"
	WORKING_DIR   = "/app"
	DOCKER_SOCKET = "/var/run/docker.sock"

	// DefaultImage runs jobs whose pool does not name an image.
	DefaultImage = "docker.io/alpine"
)

type DockerRunnerOptions struct {
	ShowImagePull     bool
	Stdout            io.Writer
	Stderr            io.Writer
	MountDockerSocket bool
}

type DockerRunner struct {
	name             string
	image            string
	src              string
	env              []string
	cmd              []string
	entrypoint       []string
	registryAuth     string
	containerID      string
	workingDirectory string
	artifacts        []string
	artifactManager  artifacts.ArtifactManager
	options          DockerRunnerOptions
}

func NewDockerRunner(name string, artifactManager artifacts.ArtifactManager, options DockerRunnerOptions) *DockerRunner {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	jobName := slug.Make(name + uuid.NewString())

	if options.Stdout == nil {
		options.Stdout = os.Stdout
	}
	if options.Stderr == nil {
		options.Stderr = os.Stderr
	}

	return &DockerRunner{
		name:             jobName,
		image:            DefaultImage,
		workingDirectory: wd,
		artifactManager:  artifactManager,
		options:          options,
	}
}

func (d *DockerRunner) WithImage(image string) *DockerRunner {
	if image != "" {
		d.image = image
	}
	return d
}

func (d *DockerRunner) WithSrc(src string) *DockerRunner {
	d.src = filepath.Clean(src)
	return d
}

func (d *DockerRunner) WithEnv(env []models.Variable) *DockerRunner {
	variables := make([]string, 0, len(env))
	for _, v := range env {
		for k, value := range v {
			variables = append(variables, fmt.Sprintf("%s=%v", k, value))
		}
	}
	d.env = variables
	return d
}

func (d *DockerRunner) WithCmd(cmd []string) *DockerRunner {
	d.cmd = cmd
	return d
}

func (d *DockerRunner) WithEntrypoint(entrypoint []string) *DockerRunner {
	d.entrypoint = entrypoint
	return d
}

// WithCredentials sets registry credentials used for the image pull.
func (d *DockerRunner) WithCredentials(username, password string) *DockerRunner {
	if username == "" && password == "" {
		return d
	}
	auth, err := json.Marshal(registry.AuthConfig{Username: username, Password: password})
	if err != nil {
		return d
	}
	d.registryAuth = base64.URLEncoding.EncodeToString(auth)
	return d
}

func (d *DockerRunner) CreatesArtifacts(artifacts []string) *DockerRunner {
	d.artifacts = artifacts
	return d
}

func (d *DockerRunner) Run(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("unable to create docker client to create container %s: %v", d.name, err)
	}
	defer cli.Close()

	reader, err := cli.ImagePull(ctx, d.image, types.ImagePullOptions{RegistryAuth: d.registryAuth})
	if err != nil {
		return fmt.Errorf("unable to pull image to create container %s: %v", d.name, err)
	}
	defer reader.Close()
	if d.options.ShowImagePull {
		if _, err := io.Copy(d.options.Stdout, reader); err != nil {
			return fmt.Errorf("unable to read image pull logs for %s: %v", d.name, err)
		}
	} else {
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return fmt.Errorf("unable to read image pull logs for %s: %v", d.name, err)
		}
	}

	if err := d.createSrcDirectories(); err != nil {
		return fmt.Errorf("unable to create source directories for %s: %v", d.name, err)
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: filepath.Join(d.workingDirectory, BUILD_DIR, fmt.Sprintf("src-%s", d.name)),
			Target: WORKING_DIR,
		},
	}
	if d.options.MountDockerSocket {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: DOCKER_SOCKET,
			Target: DOCKER_SOCKET,
		})
	}

	commandScript := strings.Join(d.cmd, "\n")
	cmd := []string{"/bin/sh", "-c", commandScript}
	if len(d.entrypoint) > 0 {
		cmd = d.cmd
	}
	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      d.image,
		Env:        d.env,
		Cmd:        cmd,
		Entrypoint: d.entrypoint,
		WorkingDir: WORKING_DIR,
	}, &container.HostConfig{
		Mounts: mounts,
	}, nil, nil, d.name)
	if err != nil {
		return fmt.Errorf("unable to create container %s: %v", d.name, err)
	}
	d.containerID = resp.ID
	defer cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := d.artifactManager.RetrieveArtifact(d.containerID, nil); err != nil {
		return fmt.Errorf("unable to retrieve artifacts for %s: %v", d.name, err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("unable to start container %s: %v", d.name, err)
	}

	logs, err := cli.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("unable to attach logs for %s: %v", d.name, err)
	}
	defer logs.Close()

	if _, err := io.Copy(d.options.Stdout, logs); err != nil {
		return fmt.Errorf("unable to read container logs from %s: %v", d.name, err)
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("error waiting for container %s to stop: %v", d.name, err)
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return fmt.Errorf("container %s exited with status %d", d.name, status.StatusCode)
		}
		if err := d.publishArtifacts(); err != nil {
			return fmt.Errorf("unable to publish artifacts for %s: %v", d.name, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("context timed out, stopping container %s", d.name)
	}

	return nil
}

func (d *DockerRunner) createSrcDirectories() error {
	return utils.TarCopy(d.src, filepath.Join(BUILD_DIR, fmt.Sprintf("src-%s", d.name)), "")
}

func (d *DockerRunner) publishArtifacts() error {
	for _, v := range d.artifacts {
		if _, err := d.artifactManager.PublishArtifact(d.containerID, filepath.Join(WORKING_DIR, v)); err != nil {
			return err
		}
	}
	return nil
}
