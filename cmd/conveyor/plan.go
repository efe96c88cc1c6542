package conveyor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/conveyor/pkg/matrix"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/opnlabs/conveyor/pkg/plan"
	"github.com/opnlabs/conveyor/pkg/template"
	"github.com/spf13/cobra"
)

var (
	planTemplatePath string
	planParameters   []string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the execution plan for a pipeline template",
	Long: `Plan resolves the template parameters, expands matrix jobs and prints the
execution waves implied by the dependsOn graph. Jobs in one wave run
concurrently.`,

	Run: func(cmd *cobra.Command, args []string) {
		p, _, err := buildPlan(planTemplatePath, parsePairs(planParameters, "parameter"))
		if err != nil {
			log.Fatal(err)
		}

		for i, wave := range p.Waves {
			fmt.Printf("wave %d:\n", i+1)
			for _, job := range wave {
				fmt.Printf("  %s%s\n", job.Name, jobDetails(p, job))
			}
		}
	},
}

func init() {
	planCmd.Flags().StringVarP(&planTemplatePath, "template", "f", "pipeline.yml", "Path to the pipeline template.")
	planCmd.Flags().StringArrayVarP(&planParameters, "parameter", "p", nil, "Template parameter overrides. KEY=VALUE")
}

// buildPlan is the shared resolve -> expand -> order path behind plan
// and run.
func buildPlan(path string, parameters map[string]string) (*plan.Plan, *models.Template, error) {
	f, err := template.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if findings := template.Lint(f); len(findings) > 0 {
		for _, finding := range findings {
			log.Error(finding.String(), "file", path)
		}
		return nil, nil, fmt.Errorf("%s: %d lint findings", path, len(findings))
	}

	tpl, err := f.Resolve(toOverrides(parameters))
	if err != nil {
		return nil, nil, err
	}

	jobs, err := matrix.ExpandAll(tpl.Jobs)
	if err != nil {
		return nil, nil, err
	}

	p, err := plan.Build(jobs)
	if err != nil {
		return nil, nil, err
	}
	return p, tpl, nil
}

func jobDetails(p *plan.Plan, job models.Job) string {
	var details []string
	if job.Pool.Image != "" {
		details = append(details, "image="+job.Pool.Image)
	}
	if len(job.DependsOn) > 0 {
		details = append(details, "dependsOn="+strings.Join(job.DependsOn, ","))
	}
	if unblocks := p.Dependents(job.Name); len(unblocks) > 0 {
		details = append(details, "unblocks="+strings.Join(unblocks, ","))
	}
	if job.Condition != "" {
		details = append(details, "condition="+job.Condition)
	}
	details = append(details, fmt.Sprintf("timeout=%dm", job.Timeout()))
	return "  (" + strings.Join(details, " ") + ")"
}
