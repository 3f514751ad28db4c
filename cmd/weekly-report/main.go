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
	"github.com/theimaginaryfoundation/guest-pulse/pulse/mailer"
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
	Week       string
	Input      string
	OutputDir  string
	Provider   string
	DryRun     bool
	NoSend     bool
	Verbose    bool
	// PreviewWidth wraps the dry-run preview.
	PreviewWidth int
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Optional YAML config file (env vars override it)")
	fs.StringVar(&cfg.Line, "line", cfg.Line, "Report line to run: surveys, reviews or all")
	fs.StringVar(&cfg.Week, "week", "", "Anchor ISO week YYYY-W## (default: last completed week)")
	fs.StringVar(&cfg.Input, "input", "", "Export file to read instead of the newest one in the configured directory (single line only)")
	fs.StringVar(&cfg.OutputDir, "out", "", "Report archive directory (overrides config)")
	fs.StringVar(&cfg.Provider, "provider", "", "Sentiment provider: lexicon, openai or gemini (overrides config)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Compute and log the report; write nothing and send nothing")
	fs.BoolVar(&cfg.NoSend, "no-send", false, "Write the ledger and archive the report but do not mail it")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Debug logging")
	fs.IntVar(&cfg.PreviewWidth, "preview-width", cfg.PreviewWidth, "Wrap width of the dry-run report preview")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Input != "" {
		cfg.Input = filepath.Clean(cfg.Input)
	}
	return cfg, nil
}

// settings loads the shared configuration and applies the flags on top.
func (c Config) settings() (config.Config, error) {
	s, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.OutputDir != "" {
		s.OutputDir = filepath.Clean(c.OutputDir)
	}
	if c.Provider != "" {
		s.Sentiment.Provider = c.Provider
	}
	req := config.Requirements{
		Surveys:       c.runs(pipeline.LineSurveys),
		Reviews:       c.runs(pipeline.LineReviews),
		Deliver:       c.delivers(),
		ExplicitInput: c.Input != "",
	}
	if err := s.Validate(req); err != nil {
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
		Config:       settings,
		History:      ledger.NewHistory(store, log),
		Log:          log,
		PreviewWidth: cfg.PreviewWidth,
	}
	if cfg.delivers() {
		sender, err := mailer.NewSMTPSender(settings.Mail)
		if err != nil {
			log.Error("mail delivery is not configured", zap.Error(err))
			return 2
		}
		runner.Sender = sender
	}

	opts := pipeline.Options{WeekKey: cfg.Week, Input: cfg.Input, DryRun: cfg.DryRun}
	code := 0
	for _, line := range cfg.lines() {
		var res pipeline.Result
		var err error
		switch line {
		case pipeline.LineSurveys:
			res, err = runner.WeeklySurveys(ctx, opts)
		case pipeline.LineReviews:
			res, err = runner.WeeklyReviews(ctx, opts)
		}
		if err != nil {
			log.Error("weekly run failed", zap.String("line", line), zap.String("run_id", res.RunID), zap.Error(err))
			code = max(code, exitCode(err))
			continue
		}
		log.Info("weekly run finished",
			zap.String("line", line),
			zap.String("run_id", res.RunID),
			zap.String("week_key", res.WeekKey),
			zap.Int("accepted", res.Accepted),
			zap.Int("rejected", res.Rejected),
			zap.Int("written", res.Written),
			zap.Int("skipped", res.Skipped),
			zap.Bool("delivered", res.Delivered),
			zap.Bool("dry_run", res.DryRun),
		)
	}
	return code
}

// exitCode is 2 for configuration problems and 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, pulse.ErrConfiguration) {
		return 2
	}
	return 1
}
