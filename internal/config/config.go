// Package config implements the single configuration record called for
// by Design Notes §9 ("a single configuration record with explicit named
// fields and a read-only accessor. Optional fields carry explicit
// absence markers"), replacing the teacher's duck-typed dict-style
// config access (cli.go's getCurrentConfig building an ad-hoc struct
// from cobra flags on every call). Config loading itself is out of
// core scope per spec.md §1, but the record and its minimal loader are
// real and used by cmd/autofix.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/wardenci/warden/internal/errs"
)

// Optional is an explicit-absence wrapper: Present distinguishes "set to
// the zero value" from "never set", which a bare pointer or zero value
// cannot (Design Notes §9).
type Optional[T any] struct {
	Present bool
	Value   T
}

// Some builds a present Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Present: true, Value: v} }

// Or returns the wrapped value if present, else fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.Present {
		return o.Value
	}
	return fallback
}

// Config is warden's single configuration record. Every field is named
// explicitly; there is no dynamic/dict-typed access path.
type Config struct {
	ProjectRoot        Optional[string]
	CacheRoot          string
	PatternUserDir     string
	LearnedPatternPath string
	FeedbackLogPath    string
	LogFormat          string // "json" | "text"

	RiskTolerance       string // low | medium | high
	ConfidenceThreshold float64
	AutoApplyLowRisk    bool

	RequestTimeout time.Duration
	CommandTimeout time.Duration

	CacheMaxBytes int64
	CacheTTL      time.Duration

	FeedbackDecay          float64
	DiscoveryMinOccurrence int
	DiscoverySimilarity    float64

	ProviderName Optional[string]
	MCPServerCmd Optional[string]
}

// Defaults returns the configuration baseline before any dotenv/env/flag
// override is applied.
func Defaults() Config {
	return Config{
		CacheRoot:              ".warden-cache",
		LogFormat:              "json",
		RiskTolerance:          "low",
		ConfidenceThreshold:    0.6,
		AutoApplyLowRisk:       false,
		RequestTimeout:         300 * time.Second,
		CommandTimeout:         60 * time.Second,
		CacheMaxBytes:          64 * 1024 * 1024,
		CacheTTL:               24 * time.Hour,
		FeedbackDecay:          0.2,
		DiscoveryMinOccurrence: 3,
		DiscoverySimilarity:    0.7,
	}
}

// FlagOverrides carries CLI-flag-sourced values, the last and
// highest-precedence link in Load's chain. A zero-value field (empty
// string, zero duration) means "flag not set" — cobra reports that via
// Changed(), which the caller is responsible for checking before
// populating this struct.
type FlagOverrides struct {
	ProjectRoot  Optional[string]
	LogFormat    Optional[string]
	RiskTol      Optional[string]
	AutoApply    Optional[bool]
	ProviderName Optional[string]
}

// Load builds the final Config: Defaults(), then a dotenv file at
// envPath (if non-empty and present — mirrors the teacher's
// loadConfiguration, which treats a missing file as non-fatal), then
// process environment variables (WARDEN_* prefix), then flags.
func Load(envPath string, flags FlagOverrides) (Config, error) {
	cfg := Defaults()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, errs.Wrap(errs.KindConfig, "load env file "+envPath, err)
		}
	}

	applyEnv(&cfg)

	if flags.ProjectRoot.Present {
		cfg.ProjectRoot = flags.ProjectRoot
	}
	if flags.LogFormat.Present {
		cfg.LogFormat = flags.LogFormat.Value
	}
	if flags.RiskTol.Present {
		cfg.RiskTolerance = flags.RiskTol.Value
	}
	if flags.AutoApply.Present {
		cfg.AutoApplyLowRisk = flags.AutoApply.Value
	}
	if flags.ProviderName.Present {
		cfg.ProviderName = flags.ProviderName
	}

	return cfg, validate(cfg)
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("WARDEN_PROJECT_ROOT"); ok {
		cfg.ProjectRoot = Some(v)
	}
	if v, ok := os.LookupEnv("WARDEN_CACHE_ROOT"); ok {
		cfg.CacheRoot = v
	}
	if v, ok := os.LookupEnv("WARDEN_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("WARDEN_RISK_TOLERANCE"); ok {
		cfg.RiskTolerance = v
	}
	if v, ok := os.LookupEnv("WARDEN_CONFIDENCE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceThreshold = f
		}
	}
	if v, ok := os.LookupEnv("WARDEN_AUTO_APPLY_LOW_RISK"); ok {
		cfg.AutoApplyLowRisk = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("WARDEN_PROVIDER"); ok {
		cfg.ProviderName = Some(v)
	}
	if v, ok := os.LookupEnv("WARDEN_MCP_SERVER_CMD"); ok {
		cfg.MCPServerCmd = Some(v)
	}
}

func validate(cfg Config) error {
	switch cfg.RiskTolerance {
	case "low", "medium", "high":
	default:
		return errs.New(errs.KindConfig, "risk_tolerance must be one of low|medium|high, got "+cfg.RiskTolerance)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return errs.New(errs.KindConfig, "confidence_threshold must be in [0,1]")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return errs.New(errs.KindConfig, "log_format must be json|text, got "+cfg.LogFormat)
	}
	return nil
}
