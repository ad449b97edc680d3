package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
	"github.com/kirillkom/property-doc-engine/internal/core/usecase"
)

func newClassifyCommand(opts *globalOptions) *cobra.Command {
	var in textInput
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Rank active document types against a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := in.resolve(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			result, err := usecase.NewClassifyUseCase(opts.store(), opts.topN).Classify(cmd.Context(), text.Text)
			if err != nil {
				return err
			}
			return opts.print(cmd, result)
		},
	}
	in.bind(cmd)
	return cmd
}

func newExtractCommand(opts *globalOptions) *cobra.Command {
	var (
		in     textInput
		typeID string
		first  bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Apply one document type's extraction rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := in.resolve(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			result, err := usecase.NewExtractUseCase(opts.store()).Extract(cmd.Context(), text.Text, typeID)
			if err != nil {
				return err
			}
			if first {
				return opts.print(cmd, engine.FirstByField(result.Fields))
			}
			return opts.print(cmd, result)
		},
	}
	in.bind(cmd)
	cmd.Flags().StringVarP(&typeID, "type", "t", "", "document type id")
	cmd.Flags().BoolVar(&first, "first", false, "keep only the highest-priority value per field")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newTestRunCommand(opts *globalOptions) *cobra.Command {
	var (
		in  textInput
		req domain.TestRunRequest
	)
	cmd := &cobra.Command{
		Use:   "test-run [file]",
		Short: "Classify and extract in one pass, optionally checking determinism",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := in.resolve(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			req.Text = text.Text
			result, err := usecase.NewTestRunUseCase(opts.store(), opts.topN).Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := opts.print(cmd, result); err != nil {
				return err
			}
			if result.Determinism != nil && !result.Determinism.Stable {
				return errors.New("results differ between runs")
			}
			return nil
		},
	}
	in.bind(cmd)
	cmd.Flags().StringVarP(&req.TypeID, "type", "t", "", "extract with this type instead of the top-ranked one")
	cmd.Flags().IntVar(&req.DeterminismRuns, "runs", 0, fmt.Sprintf("repeat evaluation and compare hashes (max %d)", usecase.MaxDeterminismRuns))
	cmd.Flags().BoolVar(&req.IncludeInactive, "include-inactive", false, "rank inactive types too")
	return cmd
}

func newSuggestCommand(opts *globalOptions) *cobra.Command {
	var (
		in      textInput
		typeID  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "suggest [file]",
		Short: "Build the business object suggestion for a document",
		Long: `suggest runs the full suggestion pipeline: rule extraction, named regexes,
mapping, post-processing, property and tenant resolution, nature, category,
label, confidence and flow locks. Without --type the document is classified
first and must be auto-assigned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := in.resolve(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			docs := newScratchDocuments(domain.Document{
				ID:             "local",
				DocumentTypeID: typeID,
				Text:           text.Text,
				TextSource:     text.Source,
				TextSHA256:     text.SHA256,
				TextLength:     text.Length,
				Status:         domain.StatusClassified,
			})

			var logger *slog.Logger
			if verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
			} else {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelError}))
			}

			store := opts.store()
			payload, err := usecase.NewSuggestUseCase(docs, store, store, store, logger).Suggest(cmd.Context(), "local")
			if err != nil {
				return err
			}
			return opts.print(cmd, payload)
		},
	}
	in.bind(cmd)
	cmd.Flags().StringVarP(&typeID, "type", "t", "", "document type id (default: classify first)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log skipped phases to stderr")
	return cmd
}

type typeReport struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Active      bool     `json:"active"`
	Keywords    int      `json:"keywords"`
	Signals     int      `json:"signals"`
	Rules       int      `json:"rules"`
	Problems    []string `json:"problems,omitempty"`
	ConfigError bool     `json:"config_error,omitempty"`
}

func newValidateCommand(opts *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile every document type and report broken blocks and patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := opts.store().ListRuleSources(cmd.Context(), false)
			if err != nil {
				return err
			}

			reports := make([]typeReport, 0, len(sources))
			problems := 0
			for _, src := range sources {
				report := inspect(src)
				problems += len(report.Problems)
				reports = append(reports, report)
			}
			if err := opts.print(cmd, reports); err != nil {
				return err
			}
			if strict && problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any problem is found")
	return cmd
}

func inspect(src domain.RuleSource) typeReport {
	rs := engine.CompileRuleSet(src)
	report := typeReport{
		ID:          src.Type.ID,
		Code:        src.Type.Code,
		Active:      src.Type.IsActive,
		Keywords:    len(src.Keywords),
		Signals:     len(src.TypeSignals),
		Rules:       len(src.Rules),
		ConfigError: rs.HasConfigError(),
	}
	for _, w := range rs.Warnings {
		report.Problems = append(report.Problems, w.Error())
	}
	for _, ts := range src.TypeSignals {
		if ts.Orphan() {
			report.Problems = append(report.Problems, fmt.Sprintf("type signal %s references a missing signal", ts.ID))
			continue
		}
		if _, err := engine.CompilePattern(ts.Signal.Pattern, ts.Signal.Flags, false); err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("signal %s: %v", ts.Signal.Code, err))
		}
	}
	for _, rule := range src.Rules {
		if _, err := engine.CompilePattern(rule.Pattern, "", true); err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("rule %s (%s): %v", rule.ID, rule.FieldName, err))
		}
	}
	return report
}
