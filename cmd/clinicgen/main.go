package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicgen/clinicgen/internal/config"
	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/platform/export"
	"github.com/clinicgen/clinicgen/internal/platform/reporting"
	"github.com/clinicgen/clinicgen/internal/platform/telemetry"
)

// errThresholdNotMet is returned in strict mode when too many records carry
// warnings.
var errThresholdNotMet = errors.New("valid record ratio below threshold")

const exitThreshold = 2

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("clinicgen failed")
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errThresholdNotMet) {
		return exitThreshold
	}
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clinicgen",
		Short:         "Synthetic paid-clinic visit dataset generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file (default ./clinicgen.yaml if present)")
	pf.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	pf.String("log-format", "json", "Log format: json or console")
	pf.String("log-file", "", "Also append logs to this file")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(dictionaryCmd())
	return rootCmd
}

// loadConfig resolves configuration for cmd and builds its logger. The
// returned closer releases the log file, if any.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, func() error, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd.Flags(), path)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, closer, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, logger, closer, nil
}

func newLogger(cfg *config.Config, stderr io.Writer) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}

	var out io.Writer = stderr
	if cfg.Log.Format == "console" || cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}
	closer := func() error { return nil }
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f.Close
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}

func generateCmd() *cobra.Command {
	d := dataset.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the dataset, its report and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer closer()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.Int("size", d.Size, "Number of visit records")
	f.Int64("seed", d.Seed, "Random seed")
	f.Float64("repeat-probability", d.RepeatProbability, "Probability that a visit belongs to an existing client")
	f.Int("batch-size", d.BatchSize, "Records per progress batch")
	f.String("dictionary", "", "Path to a custom dictionary YAML (default embedded)")
	f.String("output", "clinic_dataset.xlsx", "Output file (.xlsx or .csv)")
	f.String("report", "", "Text report path (default <output>_report.txt)")
	f.Bool("extended", false, "Add passport country, issue date and department code columns")
	f.Bool("strict", false, "Exit non-zero when the valid ratio is below --min-valid-ratio")
	f.Float64("min-valid-ratio", d.MinValidRatio, "Minimum share of records without warnings")
	f.String("metrics-textfile", "", "Write run metrics to this node-exporter textfile")
	f.String("pushgateway-url", "", "Push run metrics to this Pushgateway")
	return cmd
}

func runGenerate(ctx context.Context, cfg *config.Config, logger zerolog.Logger, stdout io.Writer) error {
	tables, err := dictionary.Load(cfg.Dictionary)
	if err != nil {
		return fmt.Errorf("%w: %w", dataset.ErrInvalidConfiguration, err)
	}
	dcfg, err := cfg.DatasetConfig()
	if err != nil {
		return err
	}

	metrics := telemetry.New()
	records, stats, err := dataset.Generate(ctx, dcfg, tables,
		dataset.WithLogger(logger),
		dataset.WithObserver(metrics),
	)
	if err != nil {
		return fmt.Errorf("generate dataset: %w", err)
	}

	written, err := export.Write(cfg.Output.Path, records, cfg.Output.Extended, logger)
	if err != nil {
		return fmt.Errorf("export dataset: %w", err)
	}

	files := []string{written, cfg.ReportPath(), cfg.JSONReportPath()}
	if cfg.Log.File != "" {
		files = append(files, cfg.Log.File)
	}
	if cfg.Metrics.Textfile != "" {
		files = append(files, cfg.Metrics.Textfile)
	}
	report := reporting.Build(stats, dcfg, tables, files...)
	if err := report.Save(cfg.ReportPath(), cfg.JSONReportPath()); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.ReportPath()).Msg("report saved")
	if err := report.WriteText(stdout); err != nil {
		return err
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return err
		}
		logger.Info().Str("path", cfg.Metrics.Textfile).Msg("metrics written")
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, stats.RunID.String()); err != nil {
			logger.Warn().Err(err).Msg("metrics push failed")
		} else {
			logger.Info().Str("url", cfg.Metrics.PushgatewayURL).Msg("metrics pushed")
		}
	}

	if !stats.MeetsThreshold(cfg.Validation.MinValidRatio) {
		ev := logger.Warn()
		if cfg.Validation.Strict {
			ev = logger.Error()
		}
		ev.Float64("valid_ratio", stats.ValidRatio()).
			Float64("min_valid_ratio", cfg.Validation.MinValidRatio).
			Msg("valid record ratio below threshold")
		if cfg.Validation.Strict {
			return fmt.Errorf("%w: %.4f < %.4f", errThresholdNotMet, stats.ValidRatio(), cfg.Validation.MinValidRatio)
		}
	}
	return nil
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file.csv|file.xlsx>",
		Short: "Re-check an exported dataset at the string level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer closer()

			maxIssues, _ := cmd.Flags().GetInt("max-issues")
			asJSON, _ := cmd.Flags().GetBool("json")
			return runVerify(cfg, logger, args[0], maxIssues, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int("max-issues", 20, "Issues to list in the summary")
	cmd.Flags().Bool("json", false, "Print the summary as JSON")
	cmd.Flags().Bool("strict", false, "Exit non-zero when the valid ratio is below --min-valid-ratio")
	cmd.Flags().Float64("min-valid-ratio", dataset.DefaultConfig().MinValidRatio, "Minimum share of valid rows")
	return cmd
}

func runVerify(cfg *config.Config, logger zerolog.Logger, path string, maxIssues int, asJSON bool, stdout io.Writer) error {
	header, rows, err := export.ReadFile(path)
	if err != nil {
		return err
	}
	lim := export.DefaultLimits()
	lim.MinResultOffset = cfg.Generation.MinResultOffset
	lim.MaxResultOffset = cfg.Generation.MaxResultOffset

	sum, err := export.Verify(header, rows, lim)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("rows", sum.Rows).Int("valid", sum.ValidRows).
		Int("issues", len(sum.Issues)).Msg("verification completed")

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	} else {
		printSummary(stdout, path, sum, maxIssues)
	}

	if cfg.Validation.Strict && sum.ValidRatio() < cfg.Validation.MinValidRatio {
		return fmt.Errorf("%w: %.4f < %.4f", errThresholdNotMet, sum.ValidRatio(), cfg.Validation.MinValidRatio)
	}
	return nil
}

func printSummary(w io.Writer, path string, sum *export.Summary, maxIssues int) {
	fmt.Fprintf(w, "Проверка файла %s\n", path)
	fmt.Fprintf(w, "- Строк: %d\n", sum.Rows)
	fmt.Fprintf(w, "- Корректных строк: %d\n", sum.ValidRows)
	fmt.Fprintf(w, "- Процент корректных строк: %.2f%%\n", sum.ValidRatio()*100)
	if len(sum.Issues) == 0 {
		return
	}

	cols := make([]string, 0, len(sum.ByColumn))
	for c := range sum.ByColumn {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	fmt.Fprintln(w, "Ошибки по колонкам:")
	for _, c := range cols {
		fmt.Fprintf(w, "- %s: %d\n", c, sum.ByColumn[c])
	}

	fmt.Fprintln(w, "Примеры:")
	for i, is := range sum.Issues {
		if i == maxIssues {
			fmt.Fprintf(w, "... и еще %d\n", len(sum.Issues)-maxIssues)
			break
		}
		fmt.Fprintf(w, "- строка %d, %s: %q (%s)\n", is.Row, is.Column, is.Value, is.Reason)
	}
}

func dictionaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Print the embedded default dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				_, err := cmd.OutOrStdout().Write(dictionary.DefaultYAML())
				return err
			}
			if err := os.WriteFile(out, dictionary.DefaultYAML(), 0o644); err != nil {
				return fmt.Errorf("write dictionary: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dictionary written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Write to this file instead of stdout")
	return cmd
}
