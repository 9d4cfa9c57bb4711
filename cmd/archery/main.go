// Package main provides the archery CLI for estimating per-position win
// probabilities of the circle elimination game by Monte-Carlo simulation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/archery-sim/config"
	"github.com/signalnine/archery-sim/game"
	"github.com/signalnine/archery-sim/report"
	"github.com/signalnine/archery-sim/simulation"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// options holds the CLI flags
type options struct {
	configPath   string
	participants int
	trials       int64
	batchSize    int64
	parallelism  int
	timeout      string
	variant      string
	output       string
	verbose      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "archery",
		Short: "Monte-Carlo win probabilities for the archery elimination game",
		Long: `Simulates the circle elimination game many times in parallel and reports
the empirical probability that each starting position wins.

Archers stand in a circle and shoot in turn. An arrow that lands closer to the
centre than every arrow so far keeps its archer in the game; any other arrow
eliminates the archer. The last archer standing wins.

Settings are read from --config (YAML), then ARCHERY_* environment variables,
then any flags given explicitly.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTournament(cmd, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	flags.IntVarP(&opts.participants, "participants", "n", 0, "Number of archers")
	flags.Int64VarP(&opts.trials, "trials", "t", 0, "Number of matches to play (rounded down to whole batches)")
	flags.Int64VarP(&opts.batchSize, "batch-size", "b", 0, "Matches per scheduled batch")
	flags.IntVarP(&opts.parallelism, "parallelism", "p", 0, "Number of worker goroutines (0 = auto-detect CPU count)")
	flags.StringVar(&opts.timeout, "timeout", "", "Maximum time to wait for all batches, e.g. 100s")
	flags.StringVar(&opts.variant, "variant", "", fmt.Sprintf("Game variant %v", game.Variants))
	flags.StringVarP(&opts.output, "output", "o", "", "Write the result as JSON to this path")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "archery %s (built %s)\n", Version, BuildTime)
		},
	})

	return rootCmd
}

// loadConfig merges the config file, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("participants") {
		cfg.Participants = opts.participants
	}
	if flags.Changed("trials") {
		cfg.Trials = opts.trials
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = opts.batchSize
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = opts.parallelism
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("variant") {
		cfg.Variant = opts.variant
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runTournament(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := cfg.Logging.Build(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	trial, err := game.Play(cfg.Variant, cfg.Participants)
	if err != nil {
		return err
	}

	tournament, err := simulation.NewTournament(cfg.Tournament(), trial, logger)
	if err != nil {
		return err
	}
	tournament.OnBatchComplete = progressLogger(logger)

	out := cmd.OutOrStdout()
	printBanner(out, cfg)

	result, err := tournament.Run(cmd.Context())
	if err != nil {
		logger.Error("tournament failed", zap.Error(err), zap.Stringer("state", tournament.State()))
		return err
	}

	if err := report.Print(out, result); err != nil {
		return err
	}

	if cfg.Output != "" {
		if err := report.WriteJSON(cfg.Output, result, cfg.Variant); err != nil {
			return err
		}
		logger.Info("result saved", zap.String("path", cfg.Output))
	}

	return nil
}

// progressLogger logs each completed tenth of the batches
func progressLogger(logger *zap.Logger) func(done, total int64) {
	return func(done, total int64) {
		step := total / 10
		if step == 0 {
			step = 1
		}
		if done%step != 0 && done != total {
			return
		}
		logger.Debug("progress",
			zap.Int64("batches_done", done),
			zap.Int64("batches_total", total),
			zap.Float64("percent", float64(done)/float64(total)*100))
	}
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Archers:      %d\n", cfg.Participants)
	fmt.Fprintf(w, "  Variant:      %s\n", cfg.Variant)
	fmt.Fprintf(w, "  Matches:      %s\n", humanize.Comma(cfg.Trials))
	fmt.Fprintf(w, "  Batch size:   %s\n", humanize.Comma(cfg.BatchSize))
	fmt.Fprintf(w, "  Workers:      %d (0=auto)\n", cfg.Parallelism)
	fmt.Fprintf(w, "  Timeout:      %s\n", cfg.GetTimeout())
	fmt.Fprintln(w)
}
