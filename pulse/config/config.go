// Package config holds the single run configuration shared by every command: defaults, an
// optional YAML file, then environment overrides. Commands apply their flags last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/mailer"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/sentiment"
)

// Input locates the newest export of one line.
type Input struct {
	Dir string `yaml:"dir"`
	// Pattern is a filepath.Match glob applied to file names in Dir.
	Pattern string `yaml:"pattern"`
}

// Config is the whole run configuration.
type Config struct {
	Hotel     string `yaml:"hotel"`
	OutputDir string `yaml:"output_dir"`

	Surveys Input `yaml:"surveys"`
	Reviews Input `yaml:"reviews"`

	Ledger    ledger.Options    `yaml:"ledger"`
	Sentiment sentiment.Options `yaml:"sentiment"`
	// OpenAIKey and GeminiKey come from the environment only.
	OpenAIKey string `yaml:"-"`
	GeminiKey string `yaml:"-"`

	Impact        pulse.ImpactOptions `yaml:"impact"`
	BaselineWeeks int                 `yaml:"baseline_weeks"`
	TopAspects    int                 `yaml:"top_aspects"`
	SampleSize    int                 `yaml:"sample_size"`
	MaxFutureDays int                 `yaml:"max_future_days"`

	// VocabularyPath stores the aspect vocabulary between runs; empty disables it.
	VocabularyPath string `yaml:"vocabulary_path"`

	Mail mailer.Options `yaml:"mail"`
}

// Default returns a configuration that runs offline: file ledger, lexicon sentiment, no mail.
func Default() Config {
	return Config{
		OutputDir: "out",
		Surveys:   Input{Dir: "exports/surveys", Pattern: "*.csv"},
		Reviews:   Input{Dir: "exports/reviews", Pattern: "*.csv"},
		Ledger:    ledger.Options{Driver: ledger.DriverFile, Path: "ledger"},
		Sentiment: sentiment.Options{
			Provider:        sentiment.ProviderLexicon,
			MaxOutputTokens: 600,
			Concurrency:     4,
			DeadZone:        sentiment.DefaultDeadZone,
			VocabularyTerms: 80,
		},
		Impact:         pulse.DefaultImpactOptions(),
		BaselineWeeks:  8,
		TopAspects:     5,
		SampleSize:     10,
		MaxFutureDays:  7,
		VocabularyPath: "ledger/aspect_vocabulary.json",
	}
}

// Load reads path over the defaults, when path is set, then applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst *string, names ...string) {
		for _, n := range names {
			if v := strings.TrimSpace(getenv(n)); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Hotel, "PULSE_HOTEL")
	str(&c.OutputDir, "PULSE_OUTPUT_DIR")
	str(&c.Surveys.Dir, "PULSE_SURVEYS_DIR")
	str(&c.Surveys.Pattern, "PULSE_SURVEYS_PATTERN")
	str(&c.Reviews.Dir, "PULSE_REVIEWS_DIR")
	str(&c.Reviews.Pattern, "PULSE_REVIEWS_PATTERN")
	str(&c.Ledger.Driver, "PULSE_LEDGER_DRIVER")
	str(&c.Ledger.Path, "PULSE_LEDGER_PATH")
	str(&c.Ledger.DSN, "PULSE_LEDGER_DSN", "DATABASE_URL")
	str(&c.Sentiment.Provider, "PULSE_SENTIMENT_PROVIDER")
	str(&c.Sentiment.Model, "PULSE_SENTIMENT_MODEL")
	str(&c.Sentiment.BaseURL, "OPENAI_BASE_URL")
	str(&c.Sentiment.LexiconPath, "PULSE_LEXICON_PATH")
	str(&c.VocabularyPath, "PULSE_VOCABULARY_PATH")
	str(&c.OpenAIKey, "OPENAI_API_KEY")
	str(&c.GeminiKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")

	str(&c.Mail.Host, "SMTP_HOST")
	str(&c.Mail.User, "SMTP_USER")
	str(&c.Mail.Password, "SMTP_PASS", "SMTP_PASSWORD")
	str(&c.Mail.From, "MAIL_FROM", "SMTP_FROM")
	str(&c.Mail.SubjectPrefix, "MAIL_SUBJECT_PREFIX")
	if v := strings.TrimSpace(getenv("MAIL_TO")); v != "" {
		c.Mail.To = mailer.SplitAddresses(v)
	}
	if v := strings.TrimSpace(getenv("SMTP_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			cerr := &pulse.ConfigurationError{}
			cerr.AddInvalid("SMTP_PORT", "not a number")
			return cerr
		}
		c.Mail.Port = port
	}
	return nil
}

// SentimentOptions returns the sentiment settings with the API key of the chosen provider.
func (c Config) SentimentOptions() sentiment.Options {
	o := c.Sentiment
	switch strings.ToLower(o.Provider) {
	case sentiment.ProviderOpenAI:
		o.APIKey = c.OpenAIKey
	case sentiment.ProviderGemini:
		o.APIKey = c.GeminiKey
	}
	return o
}

// Requirements selects which parts of the configuration a command needs.
type Requirements struct {
	Surveys bool
	Reviews bool
	// Deliver requires a complete mail setup.
	Deliver bool
	// ExplicitInput means the export file is named directly, so input directories are not needed.
	ExplicitInput bool
}

// Validate checks the settings req needs and reports every problem at once as a
// *pulse.ConfigurationError.
func (c Config) Validate(req Requirements) error {
	e := &pulse.ConfigurationError{}

	if req.Surveys && !req.ExplicitInput && c.Surveys.Dir == "" {
		e.AddMissing("surveys.dir")
	}
	if req.Reviews && !req.ExplicitInput && c.Reviews.Dir == "" {
		e.AddMissing("reviews.dir")
	}
	for _, in := range []struct {
		name    string
		pattern string
	}{{"surveys.pattern", c.Surveys.Pattern}, {"reviews.pattern", c.Reviews.Pattern}} {
		if _, err := filepath.Match(in.pattern, ""); err != nil {
			e.AddInvalid(in.name, "bad glob")
		}
	}
	if c.OutputDir == "" {
		e.AddMissing("output_dir")
	}

	switch c.Ledger.Driver {
	case ledger.DriverMemory:
	case ledger.DriverFile, ledger.DriverSQLite:
		if c.Ledger.Path == "" {
			e.AddMissing("ledger.path")
		}
	case ledger.DriverPostgres:
		if c.Ledger.DSN == "" {
			e.AddMissing("ledger.dsn")
		}
	case "":
		e.AddMissing("ledger.driver")
	default:
		e.AddInvalid("ledger.driver", "want memory, file, sqlite or postgres")
	}

	if req.Reviews {
		switch strings.ToLower(c.Sentiment.Provider) {
		case "", sentiment.ProviderLexicon:
		case sentiment.ProviderOpenAI:
			if c.OpenAIKey == "" {
				e.AddMissing("OPENAI_API_KEY")
			}
			if c.Sentiment.Model == "" {
				e.AddMissing("sentiment.model")
			}
		case sentiment.ProviderGemini:
			if c.GeminiKey == "" {
				e.AddMissing("GEMINI_API_KEY")
			}
		default:
			e.AddInvalid("sentiment.provider", "want lexicon, openai or gemini")
		}
		if c.Sentiment.Concurrency < 0 {
			e.AddInvalid("sentiment.concurrency", "must be >= 0")
		}
		if c.Sentiment.DeadZone < 0 || c.Sentiment.DeadZone >= 1 {
			e.AddInvalid("sentiment.dead_zone", "must be in [0,1)")
		}
		if c.Impact.DeadZone < 0 {
			e.AddInvalid("impact.dead_zone", "must be >= 0")
		}
		if c.Impact.MinSamples < 1 {
			e.AddInvalid("impact.min_samples", "must be >= 1")
		}
		if c.BaselineWeeks < 1 {
			e.AddInvalid("baseline_weeks", "must be >= 1")
		}
	}
	if c.MaxFutureDays < 0 {
		e.AddInvalid("max_future_days", "must be >= 0")
	}

	if req.Deliver {
		m := c.Mail.Resolve()
		if m.Host == "" {
			e.AddMissing("SMTP_HOST")
		}
		if m.User == "" {
			e.AddMissing("SMTP_USER")
		}
		if m.Password == "" {
			e.AddMissing("SMTP_PASS")
		}
		if len(m.To) == 0 {
			e.AddMissing("MAIL_TO")
		}
	}
	return e.Err()
}

// NewLogger builds the production JSON logger, at debug level when verbose is set.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
