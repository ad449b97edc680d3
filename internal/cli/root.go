// Package cli implements rulectl, the offline harness for rule snapshots.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/property-doc-engine/internal/infrastructure/repository/rulefile"
)

const defaultMaxBytes = 25 << 20

type globalOptions struct {
	rulesPath string
	topN      int
	maxBytes  int64
	pdfPages  int
	compact   bool
}

// NewRootCommand builds the command tree. Output goes to out so tests can
// capture it.
func NewRootCommand(version string, out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "rulectl",
		Short: "Run document classification rules against local files",
		Long: `rulectl loads document types, keywords, signals and extraction rules from
a YAML snapshot and evaluates them against text or files without a database.

Example:
  rulectl classify --rules rules.yaml avis.pdf
  rulectl extract --rules rules.yaml --type t-facture --text "Facture n°123"
  rulectl suggest --rules rules.yaml avis.html`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&opts.rulesPath, "rules", "r", "rules.yaml", "YAML rule snapshot")
	root.PersistentFlags().IntVar(&opts.topN, "top", 3, "number of ranked candidates to report")
	root.PersistentFlags().Int64Var(&opts.maxBytes, "max-bytes", defaultMaxBytes, "max input file size")
	root.PersistentFlags().IntVar(&opts.pdfPages, "pdf-pages", 50, "max PDF pages to read")
	root.PersistentFlags().BoolVar(&opts.compact, "compact", false, "print single-line JSON")

	root.AddCommand(
		newClassifyCommand(opts),
		newExtractCommand(opts),
		newTestRunCommand(opts),
		newSuggestCommand(opts),
		newValidateCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "rulectl %s\n", version)
			},
		},
	)
	return root
}

func (o *globalOptions) store() *rulefile.Store {
	return rulefile.NewStore(o.rulesPath)
}

func (o *globalOptions) print(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !o.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
