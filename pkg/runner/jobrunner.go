package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/opnlabs/conveyor/pkg/artifacts"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/utils"
)

type DockerJobRunnerOptions struct {
	ShowImagePull     bool
	MountDockerSocket bool
	Username          string
	Password          string
	ExtraEnv          []models.Variable
	Stdout            io.Writer
	Stderr            io.Writer
}

// DockerJobRunner turns planned jobs into docker runner invocations.
// Each job gets its own color-prefixed log writers.
type DockerJobRunner struct {
	manager artifacts.ArtifactManager
	opts    DockerJobRunnerOptions
}

func NewDockerJobRunner(manager artifacts.ArtifactManager, opts DockerJobRunnerOptions) *DockerJobRunner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &DockerJobRunner{manager: manager, opts: opts}
}

func (r *DockerJobRunner) Run(ctx context.Context, job models.Job) error {
	return NewDockerRunner(job.Name, r.manager, DockerRunnerOptions{
		ShowImagePull:     r.opts.ShowImagePull,
		Stdout:            utils.NewColorLogger(job.Name, r.opts.Stdout, true),
		Stderr:            utils.NewColorLogger(job.Name, r.opts.Stderr, false),
		MountDockerSocket: r.opts.MountDockerSocket,
	}).
		WithImage(job.Pool.Image).
		WithSrc(job.Src).
		WithCmd(Script(job)).
		WithEnv(append(job.Variables, r.opts.ExtraEnv...)).
		WithCredentials(r.opts.Username, r.opts.Password).
		CreatesArtifacts(job.Artifacts).
		Run(ctx)
}

// Script flattens a job's steps into the shell script the container
// runs. Steps referencing external templates cannot execute locally
// and become a notice line instead.
func Script(job models.Job) []string {
	var script []string
	for _, step := range job.Steps {
		if step.Template != "" {
			script = append(script, fmt.Sprintf("echo 'skipping external step template %s'", step.Template))
			continue
		}
		script = append(script, step.Script...)
	}
	return script
}
