package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/config"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/pipeline"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	settings, err := cfg.settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, settings, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

type Config struct {
	ConfigPath string
	Line       string
	Input      string
	Provider   string
	DryRun     bool
	Rescore    bool
	Verbose    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Optional YAML config file (env vars override it)")
	fs.StringVar(&cfg.Line, "line", cfg.Line, "History to rebuild: surveys, reviews or all")
	fs.StringVar(&cfg.Input, "input", "", "Single export file to rebuild from instead of every matching file (single line only)")
	fs.StringVar(&cfg.Provider, "provider", "", "Sentiment provider: lexicon, openai or gemini (overrides config)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Parse and aggregate but leave the ledger untouched")
	fs.BoolVar(&cfg.Rescore, "rescore", false, "Score every review again instead of keeping stored annotations")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Input != "" {
		cfg.Input = filepath.Clean(cfg.Input)
	}
	return cfg, nil
}

func (c Config) settings() (config.Config, error) {
	s, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.Provider != "" {
		s.Sentiment.Provider = c.Provider
	}
	err = s.Validate(config.Requirements{
		Surveys:       c.runs(pipeline.LineSurveys),
		Reviews:       c.runs(pipeline.LineReviews),
		ExplicitInput: c.Input != "",
	})
	if err != nil {
		return config.Config{}, err
	}
	return s, nil
}

func run(ctx context.Context, cfg Config, settings config.Config, log *zap.Logger) int {
	store, err := ledger.Open(ctx, settings.Ledger)
	if err != nil {
		log.Error("ledger unavailable", zap.String("driver", settings.Ledger.Driver), zap.Error(err))
		return 1
	}
	defer store.Close()

	runner := &pipeline.Runner{
		Config:  settings,
		History: ledger.NewHistory(store, log),
		Log:     log,
	}
	opts := pipeline.Options{Input: cfg.Input, DryRun: cfg.DryRun, Rescore: cfg.Rescore}
	for _, line := range cfg.lines() {
		var res pipeline.Result
		var err error
		switch line {
		case pipeline.LineSurveys:
			res, err = runner.BackfillSurveys(ctx, opts)
		case pipeline.LineReviews:
			res, err = runner.BackfillReviews(ctx, opts)
		}
		if err != nil {
			// A half-rebuilt ledger is worse than a stale one: stop at the first failure.
			log.Error("backfill failed", zap.String("line", line), zap.String("run_id", res.RunID), zap.Error(err))
			if errors.Is(err, pulse.ErrConfiguration) {
				return 2
			}
			return 1
		}
		log.Info("backfill finished",
			zap.String("line", line),
			zap.String("run_id", res.RunID),
			zap.Strings("inputs", res.Inputs),
			zap.String("latest_week", res.WeekKey),
			zap.Int("accepted", res.Accepted),
			zap.Int("rejected", res.Rejected),
			zap.Int("rows", res.Written),
			zap.Bool("dry_run", res.DryRun),
		)
	}
	return 0
}
