package conveyor

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/conveyor/pkg/artifacts"
	"github.com/opnlabs/conveyor/pkg/condition"
	"github.com/opnlabs/conveyor/pkg/runner"
	"github.com/spf13/cobra"
)

var (
	runTemplatePath   string
	runParameters     []string
	runEnvVars        []string
	mountDockerSocket bool
	showImagePull     bool
	username          string
	password          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline template locally in docker containers",
	Long: `Run resolves the template, expands matrix jobs and executes the plan wave
by wave. Jobs within a wave run concurrently in their own containers.
Conditional jobs are started only if their condition holds against the
outcomes of their dependencies.`,

	Run: func(cmd *cobra.Command, args []string) {
		variables := parsePairs(runEnvVars, "environment-variable")

		p, _, err := buildPlan(runTemplatePath, parsePairs(runParameters, "parameter"))
		if err != nil {
			log.Fatal(err)
		}

		manager, err := artifacts.NewDockerArtifactsManager(runner.ARTIFACTS_DIR)
		if err != nil {
			log.Fatal(err)
		}

		jobRunner := runner.NewDockerJobRunner(manager, runner.DockerJobRunnerOptions{
			ShowImagePull:     showImagePull,
			MountDockerSocket: mountDockerSocket,
			Username:          username,
			Password:          password,
			ExtraEnv:          toVariables(variables),
		})

		executor := runner.NewExecutor(jobRunner, variables)
		outcomes, err := executor.Execute(context.Background(), p)
		for _, job := range p.Jobs() {
			log.Info("job finished", "job", job.Name, "outcome", outcomes[job.Name])
		}
		if err != nil {
			for _, job := range p.Jobs() {
				if outcomes[job.Name] != condition.Failed {
					continue
				}
				if downstream := p.TransitiveDependents(job.Name); len(downstream) > 0 {
					log.Error("failure reached downstream jobs", "job", job.Name, "downstream", strings.Join(downstream, ","))
				}
			}
			log.Fatal(err)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&runTemplatePath, "template", "f", "pipeline.yml", "Path to the pipeline template.")
	runCmd.Flags().StringArrayVarP(&runParameters, "parameter", "p", nil, "Template parameter overrides. KEY=VALUE")
	runCmd.Flags().StringArrayVarP(&runEnvVars, "environment-variable", "e", nil, "Environment variables. KEY=VALUE")
	runCmd.Flags().BoolVarP(&mountDockerSocket, "mount-docker-socket", "m", false, "Mount the docker socket into job containers.")
	runCmd.Flags().BoolVar(&showImagePull, "show-image-pull", false, "Stream image pull progress.")
	runCmd.Flags().StringVarP(&username, "registry-username", "u", "", "Username for the container registry")
	runCmd.Flags().StringVarP(&password, "registry-password", "P", "", "Password / Token for the container registry")
}
