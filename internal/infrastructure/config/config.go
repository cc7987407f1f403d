// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion and an optional .env
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	if err := cfg.Validate(); err != nil { ... }
//	matchCfg, err := cfg.MatcherConfig("statement")
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation problem.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrUnknownProfile is returned for a matching profile that is neither
// configured nor a built-in preset.
var ErrUnknownProfile = errors.New("unknown matching profile")

var validate = validator.New()

// Config represents the entire application configuration
type Config struct {
	Normalizer    NormalizerConfig    `yaml:"normalizer"`
	Matching      MatchingConfig      `yaml:"matching"`
	Categories    []RuleConfig        `yaml:"categories" validate:"dive"`
	OwnAccounts   []string            `yaml:"own_accounts" validate:"dive,required"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// NormalizerConfig overrides the normalizer's built-in tables. An empty list
// keeps the default table; a non-empty one replaces it.
type NormalizerConfig struct {
	YearHint         int    `yaml:"year_hint" validate:"omitempty,gte=1900,lte=2200"`
	AmountCeiling    string `yaml:"amount_ceiling" validate:"omitempty,numeric"`
	DefaultDirection string `yaml:"default_direction" validate:"omitempty,oneof=debit credit"`

	CreditKeywords      []string `yaml:"credit_keywords"`
	DebitKeywords       []string `yaml:"debit_keywords"`
	NoisePatterns       []string `yaml:"noise_patterns"`
	ReferencePatterns   []string `yaml:"reference_patterns"`
	BusinessKeyPatterns []string `yaml:"business_key_patterns"`
	SegmentMarkers      []string `yaml:"segment_markers"`
	SkipPatterns        []string `yaml:"skip_patterns"`
}

// MatchingConfig holds named matching profiles
type MatchingConfig struct {
	DefaultProfile string                   `yaml:"default_profile"`
	Profiles       map[string]ProfileConfig `yaml:"profiles" validate:"dive"`
}

// ProfileConfig overrides a preset. Unset fields keep the preset's value.
type ProfileConfig struct {
	Preset           string        `yaml:"preset" validate:"omitempty,oneof=statement statement_vs_ledger payroll payroll_vs_cash transfers"`
	WindowDays       *int          `yaml:"window_days" validate:"omitempty,gte=0,lte=366"`
	Epsilon          string        `yaml:"epsilon" validate:"omitempty,numeric"`
	MinScore         *float64      `yaml:"min_score"`
	Direction        string        `yaml:"direction" validate:"omitempty,oneof=same opposite"`
	MinSharedWords   *int          `yaml:"min_shared_words" validate:"omitempty,gte=1"`
	StopWords        []string      `yaml:"stop_words"`
	TransferKeywords []string      `yaml:"transfer_keywords"`
	RoundAmountUnit  string        `yaml:"round_amount_unit" validate:"omitempty,numeric"`
	DistinctSources  *bool         `yaml:"distinct_sources"`
	DisableIndex     bool          `yaml:"disable_index"`
	Weights          WeightsConfig `yaml:"weights"`
}

// WeightsConfig overrides individual scoring weights
type WeightsConfig struct {
	AmountExact        *float64 `yaml:"amount_exact" validate:"omitempty,gt=0"`
	DatePenaltyPerDay  *float64 `yaml:"date_penalty_per_day" validate:"omitempty,gte=0"`
	ReferenceOverlap   *float64 `yaml:"reference_overlap" validate:"omitempty,gte=0"`
	DescriptionOverlap *float64 `yaml:"description_overlap" validate:"omitempty,gte=0"`
	BusinessKey        *float64 `yaml:"business_key" validate:"omitempty,gte=0"`
	TransferKeyword    *float64 `yaml:"transfer_keyword" validate:"omitempty,gte=0"`
	RoundAmount        *float64 `yaml:"round_amount" validate:"omitempty,gte=0"`
	CategoryAgreement  *float64 `yaml:"category_agreement" validate:"omitempty,gte=0"`
}

// RuleConfig is one category rule as written in YAML
type RuleConfig struct {
	Name      string   `yaml:"name"`
	Tag       string   `yaml:"tag" validate:"required"`
	Transfer  bool     `yaml:"transfer"`
	Any       []string `yaml:"any"`
	All       []string `yaml:"all"`
	Pattern   string   `yaml:"pattern"`
	Direction string   `yaml:"direction" validate:"omitempty,oneof=debit credit DEBIT CREDIT"`
	MinAmount string   `yaml:"min_amount" validate:"omitempty,numeric"`
	MaxAmount string   `yaml:"max_amount" validate:"omitempty,numeric"`
	Sources   []string `yaml:"sources"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `yaml:"output" validate:"omitempty,oneof=stdout stderr"`
}

// Load reads and parses the config file. A .env file next to it is loaded
// first so ${VAR} references can come from there.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := LoadDotEnv(dotEnvBeside(path)); err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECON_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Normalizer: NormalizerConfig{
			YearHint:         getEnvInt("RECON_YEAR_HINT", 0),
			AmountCeiling:    getEnv("RECON_AMOUNT_CEILING", ""),
			DefaultDirection: getEnv("RECON_DEFAULT_DIRECTION", ""),
		},
		Matching: MatchingConfig{
			DefaultProfile: getEnv("RECON_PROFILE", ""),
		},
		OwnAccounts: getEnvList("RECON_OWN_ACCOUNTS"),
		Storage: StorageConfig{
			DatabasePath: getEnv("RECON_DB_PATH", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", ""),
				Format: getEnv("LOG_FORMAT", ""),
				Output: getEnv("LOG_OUTPUT", ""),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	_ = LoadDotEnv(".env")
	return LoadFromEnv()
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks struct tags and every conversion into domain configs,
// reporting all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%w: %s fails %q (value %v)",
					ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			result = multierror.Append(result, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
	}

	if _, err := c.NormalizerConfig(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: normalizer: %v", ErrInvalidConfig, err))
	}
	for _, name := range c.ProfileNames() {
		if _, err := c.MatcherConfig(name); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: profile %s: %v", ErrInvalidConfig, name, err))
		}
	}
	if _, err := c.CategoryRules(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: categories: %v", ErrInvalidConfig, err))
	}

	return result.ErrorOrNil()
}

func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "recon.db"
	}
	if c.Matching.DefaultProfile == "" {
		c.Matching.DefaultProfile = "statement"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
	if c.Observability.Logging.Output == "" {
		c.Observability.Logging.Output = "stderr"
	}
}

func dotEnvBeside(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[:i+1] + ".env"
	}
	return ".env"
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
