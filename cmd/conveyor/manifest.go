package conveyor

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/conveyor/pkg/manifest"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and check generated metadata manifests",
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a manifest against its invariants",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, raw, err := manifest.Load(args[0])
		if err != nil {
			log.Fatal(err)
		}
		findings := manifest.Validate(m, raw)
		for _, finding := range findings {
			log.Error(finding.String(), "file", args[0])
		}
		if len(findings) > 0 {
			os.Exit(1)
		}
		log.Info("no findings")
	},
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the constructor surface a manifest describes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, _, err := manifest.Load(args[0])
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(manifest.Summary(m))
	},
}

// rewriteCmd regenerates a manifest wholesale in canonical form.
var manifestRewriteCmd = &cobra.Command{
	Use:   "rewrite <file>",
	Short: "Rewrite a manifest in canonical form",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, raw, err := manifest.Load(args[0])
		if err != nil {
			log.Fatal(err)
		}
		if findings := manifest.Validate(m, raw); len(findings) > 0 {
			for _, finding := range findings {
				log.Error(finding.String(), "file", args[0])
			}
			os.Exit(1)
		}
		if err := manifest.Write(args[0], m); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	manifestCmd.AddCommand(manifestValidateCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestRewriteCmd)
}
