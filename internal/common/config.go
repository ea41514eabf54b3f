package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/joseph-ayodele/invoice-matcher/constants"
)

// EnvPrefix scopes environment overrides, e.g.
// INVOICEMATCH_EXTRACTION__COST_CAP_USD -> extraction.cost_cap_usd
const EnvPrefix = "INVOICEMATCH_"

// Config holds all application configuration
type Config struct {
	Extraction ExtractionConfig          `koanf:"extraction"`
	Providers  map[string]ProviderConfig `koanf:"providers"`
	Matching   MatchingConfig            `koanf:"matching"`
	Patterns   PatternsConfig            `koanf:"patterns"`
	RateLimit  RateLimitConfig           `koanf:"ratelimit"`
}

// ExtractionConfig holds the fallback chain and its budget.
type ExtractionConfig struct {
	Chain               []string      `koanf:"chain"`
	CostCapUSD          float64       `koanf:"cost_cap_usd"`
	ConfidenceThreshold float64       `koanf:"confidence_threshold"`
	Timeout             time.Duration `koanf:"timeout"`
	MaxRetries          int           `koanf:"max_retries"`
	Workers             int           `koanf:"workers"`
}

// ProviderConfig configures one chain method. The key under `providers` is the method name.
type ProviderConfig struct {
	Type              string  `koanf:"type"`
	Model             string  `koanf:"model"`
	APIKeyEnv         string  `koanf:"api_key_env"`
	BaseURL           string  `koanf:"base_url"`
	InputPerMTok      float64 `koanf:"input_per_mtok"`
	OutputPerMTok     float64 `koanf:"output_per_mtok"`
	PerCallUSD        float64 `koanf:"per_call_usd"`
	RequestsPerMinute int     `koanf:"requests_per_minute"`
	Temperature       float64 `koanf:"temperature"`
	MaxOutputTokens   int64   `koanf:"max_output_tokens"`
}

// APIKey resolves the provider credential from the environment.
func (p ProviderConfig) APIKey() string {
	name := strings.TrimSpace(p.APIKeyEnv)
	if name == "" {
		switch constants.ProviderType(p.Type) {
		case constants.ProviderOpenAI:
			name = "OPENAI_API_KEY"
		case constants.ProviderAnthropic:
			name = "ANTHROPIC_API_KEY"
		default:
			return ""
		}
	}
	return os.Getenv(name)
}

// MatchingConfig holds the scoring weights and thresholds.
type MatchingConfig struct {
	TextWeight            float64       `koanf:"text_weight"`
	AmountWeight          float64       `koanf:"amount_weight"`
	AmountTolerance       float64       `koanf:"amount_tolerance"`
	RelevanceFloor        float64       `koanf:"relevance_floor"`
	PatternBoost          float64       `koanf:"pattern_boost"`
	PatternAcceptAccuracy float64       `koanf:"pattern_accept_accuracy"`
	PatternMinHits        int           `koanf:"pattern_min_hits"`
	PatternLookupTimeout  time.Duration `koanf:"pattern_lookup_timeout"`
	Alternatives          int           `koanf:"alternatives"`
}

// PatternsConfig selects the pattern store backend.
type PatternsConfig struct {
	Driver          string        `koanf:"driver"` // memory | sqlite | postgres
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	DialTimeout     time.Duration `koanf:"dial_timeout"`
}

// RateLimitConfig selects where sliding windows live.
type RateLimitConfig struct {
	Backend   string        `koanf:"backend"` // memory | redis
	Window    time.Duration `koanf:"window"`
	RedisAddr string        `koanf:"redis_addr"`
	KeyPrefix string        `koanf:"key_prefix"`
}

// LoadConfig reads the optional YAML file at path, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeyValue maps INVOICEMATCH_SECTION__FIELD_NAME to section.field_name and
// splits comma-separated chains.
func envKeyValue(key, value string) (string, interface{}) {
	k := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	k = strings.ReplaceAll(k, "__", ".")
	if k == "extraction.chain" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return k, out
	}
	return k, value
}

// DefaultConfig returns a configuration that runs the heuristic method only.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	// Extraction defaults
	if len(cfg.Extraction.Chain) == 0 {
		cfg.Extraction.Chain = []string{string(constants.ProviderHeuristic)}
	}
	if cfg.Extraction.CostCapUSD == 0 {
		cfg.Extraction.CostCapUSD = 1.00
	}
	if cfg.Extraction.ConfidenceThreshold == 0 {
		cfg.Extraction.ConfidenceThreshold = 0.80
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 45 * time.Second
	}
	if cfg.Extraction.MaxRetries == 0 {
		cfg.Extraction.MaxRetries = 2
	}
	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = 4
	}

	// Providers: the heuristic method needs no configuration
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if _, ok := cfg.Providers[string(constants.ProviderHeuristic)]; !ok {
		cfg.Providers[string(constants.ProviderHeuristic)] = ProviderConfig{Type: string(constants.ProviderHeuristic)}
	}
	for name, p := range cfg.Providers {
		if p.Type == "" {
			p.Type = name
		}
		if canon, ok := constants.CanonicalProvider(p.Type); ok {
			p.Type = string(canon)
		}
		if p.RequestsPerMinute == 0 {
			p.RequestsPerMinute = 50
		}
		if p.MaxOutputTokens == 0 {
			p.MaxOutputTokens = 2048
		}
		cfg.Providers[name] = p
	}

	// Matching defaults
	if cfg.Matching.TextWeight == 0 && cfg.Matching.AmountWeight == 0 {
		cfg.Matching.TextWeight = 0.6
		cfg.Matching.AmountWeight = 0.4
	}
	if cfg.Matching.AmountTolerance == 0 {
		cfg.Matching.AmountTolerance = 0.25
	}
	if cfg.Matching.RelevanceFloor == 0 {
		cfg.Matching.RelevanceFloor = 0.30
	}
	if cfg.Matching.PatternBoost == 0 {
		cfg.Matching.PatternBoost = 0.25
	}
	if cfg.Matching.PatternAcceptAccuracy == 0 {
		cfg.Matching.PatternAcceptAccuracy = 0.85
	}
	if cfg.Matching.PatternMinHits == 0 {
		cfg.Matching.PatternMinHits = 3
	}
	if cfg.Matching.PatternLookupTimeout == 0 {
		cfg.Matching.PatternLookupTimeout = 2 * time.Second
	}
	if cfg.Matching.Alternatives == 0 {
		cfg.Matching.Alternatives = 3
	}

	// Pattern store defaults
	if cfg.Patterns.Driver == "" {
		cfg.Patterns.Driver = "memory"
	}
	if cfg.Patterns.MaxConns == 0 {
		cfg.Patterns.MaxConns = 10
	}
	if cfg.Patterns.MaxConnLifetime == 0 {
		cfg.Patterns.MaxConnLifetime = 30 * time.Minute
	}
	if cfg.Patterns.DialTimeout == 0 {
		cfg.Patterns.DialTimeout = 3 * time.Second
	}

	// Rate limit defaults
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = "invoicematch:ratelimit:"
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if len(c.Extraction.Chain) == 0 {
		return NewAppError("CONFIG_ERROR", "extraction.chain is empty", ErrNoMethods)
	}
	for _, method := range c.Extraction.Chain {
		if _, ok := c.Providers[method]; !ok {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("chain method %q has no provider entry", method), ErrNoMethods)
		}
	}

	v := NewValidator()
	v.Field("extraction.cost_cap_usd", c.Extraction.CostCapUSD, NonNegative)
	v.Field("extraction.confidence_threshold", c.Extraction.ConfidenceThreshold, InRange(0, 1))
	v.Field("extraction.max_retries", c.Extraction.MaxRetries, InRange(0, 10))
	v.Field("extraction.workers", c.Extraction.Workers, InRange(1, 256))
	for name, p := range c.Providers {
		prefix := "providers." + name
		v.Field(prefix+".type", p.Type, OneOf(constants.ProviderTypes()...))
		v.Field(prefix+".input_per_mtok", p.InputPerMTok, NonNegative)
		v.Field(prefix+".output_per_mtok", p.OutputPerMTok, NonNegative)
		v.Field(prefix+".per_call_usd", p.PerCallUSD, NonNegative)
		v.Field(prefix+".requests_per_minute", p.RequestsPerMinute, InRange(1, 100000))
		v.Field(prefix+".temperature", p.Temperature, InRange(0, 2))
		if p.Type != string(constants.ProviderHeuristic) {
			v.Field(prefix+".model", p.Model, Required)
		}
	}
	v.Field("matching.text_weight", c.Matching.TextWeight, NonNegative)
	v.Field("matching.amount_weight", c.Matching.AmountWeight, NonNegative)
	v.Check(c.Matching.TextWeight+c.Matching.AmountWeight > 0, "matching.weights", c.Matching.TextWeight+c.Matching.AmountWeight, "must sum to more than zero")
	v.Field("matching.amount_tolerance", c.Matching.AmountTolerance, InRange(0.0001, 10))
	v.Field("matching.relevance_floor", c.Matching.RelevanceFloor, InRange(0, 1))
	v.Field("matching.pattern_boost", c.Matching.PatternBoost, InRange(0, 1))
	v.Field("matching.pattern_accept_accuracy", c.Matching.PatternAcceptAccuracy, InRange(0, 1))
	v.Field("patterns.driver", c.Patterns.Driver, OneOf("memory", "sqlite", "postgres"))
	if c.Patterns.Driver != "memory" {
		v.Field("patterns.dsn", c.Patterns.DSN, Required)
	}
	v.Field("ratelimit.backend", c.RateLimit.Backend, OneOf("memory", "redis"))
	if c.RateLimit.Backend == "redis" {
		v.Field("ratelimit.redis_addr", c.RateLimit.RedisAddr, Required)
	}
	return ValidateAndReturnError(v)
}
