package conveyor

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/conveyor/pkg/manifest"
	"github.com/opnlabs/conveyor/pkg/template"
	"github.com/spf13/cobra"
)

var (
	lintTemplatePath string
	lintManifestPath string
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check a pipeline template and optionally a metadata manifest",
	Long: `Lint runs the static checks: every ${{ parameters.X }} reference must be
declared, every dependsOn target must name an earlier job, steps must be well
formed and conditions, matrix filters and replace expressions must parse. With
--manifest, the manifest invariants are checked as well.`,

	Run: func(cmd *cobra.Command, args []string) {
		failed := false

		f, err := template.Load(lintTemplatePath)
		if err != nil {
			log.Fatal(err)
		}
		findings := template.Lint(f)
		for _, finding := range findings {
			log.Error(finding.String(), "file", lintTemplatePath)
		}
		failed = failed || len(findings) > 0

		if lintManifestPath != "" {
			m, raw, err := manifest.Load(lintManifestPath)
			if err != nil {
				log.Fatal(err)
			}
			manifestFindings := manifest.Validate(m, raw)
			for _, finding := range manifestFindings {
				log.Error(finding.String(), "file", lintManifestPath)
			}
			failed = failed || len(manifestFindings) > 0
		}

		if failed {
			os.Exit(1)
		}
		log.Info("no findings")
	},
}

func init() {
	lintCmd.Flags().StringVarP(&lintTemplatePath, "template", "f", "pipeline.yml", "Path to the pipeline template.")
	lintCmd.Flags().StringVar(&lintManifestPath, "manifest", "", "Path to a metadata manifest to check as well.")
}
