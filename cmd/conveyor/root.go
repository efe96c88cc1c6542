package conveyor

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/conveyor/pkg/models"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "Conveyor is a toolkit for SDK release pipelines",
	Long: `Conveyor loads parameterized pipeline templates, checks their static
invariants, expands test matrices, plans the job dependency graph and can
execute the planned jobs locally inside docker containers. It also validates
and regenerates the metadata manifests that describe generated client
libraries.`,
}

func init() {
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// parsePairs turns KEY=VALUE arguments into a map.
func parsePairs(pairs []string, flag string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			log.Fatalf("%s values should be defined as KEY=VALUE: %s", flag, pair)
		}
		m[key] = value
	}
	return m
}

func toVariables(m map[string]string) []models.Variable {
	variables := make([]models.Variable, 0, len(m))
	for k, v := range m {
		variables = append(variables, models.Variable{k: v})
	}
	return variables
}

func toOverrides(m map[string]string) map[string]any {
	overrides := make(map[string]any, len(m))
	for k, v := range m {
		overrides[k] = v
	}
	return overrides
}
