// Package app wires configuration into the extraction chain, the pattern store and
// the matching engine. Binaries build one App at startup and Close it on exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/extract"
	"github.com/joseph-ayodele/invoice-matcher/internal/heuristic"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm/anthropic"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-matcher/internal/matching"
	"github.com/joseph-ayodele/invoice-matcher/internal/patterns"
	"github.com/joseph-ayodele/invoice-matcher/internal/pipeline"
	"github.com/joseph-ayodele/invoice-matcher/internal/ratelimit"
)

type App struct {
	Config       *common.Config
	Logger       *slog.Logger
	Limiter      ratelimit.Limiter
	Orchestrator *extract.Orchestrator
	Patterns     patterns.Store
	Matcher      *matching.Engine
	Gate         *approval.Gate
	Processor    *pipeline.Processor

	closers []func() error
}

// New builds every component from cfg. Only configuration and connection problems
// are returned as errors.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = common.DefaultConfig()
	}
	a := &App{Config: cfg, Logger: logger}

	limiter, err := a.openLimiter(ctx)
	if err != nil {
		return nil, err
	}
	a.Limiter = limiter

	methods, err := BuildAdapters(cfg, limiter, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	orch, err := extract.New(cfg.Extraction, methods, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Orchestrator = orch

	store, err := a.openPatterns(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Patterns = store
	a.Matcher = matching.New(matching.ConfigFrom(cfg.Matching), store, logger)
	a.Gate = approval.NewGate(approval.DefaultBands())
	a.Processor = pipeline.NewProcessor(logger, a.Orchestrator, a.Matcher, a.Gate)

	logger.Info("app.ready",
		"chain", orch.Chain(),
		"cost_cap_usd", cfg.Extraction.CostCapUSD,
		"threshold", cfg.Extraction.ConfidenceThreshold,
		"patterns", cfg.Patterns.Driver,
		"ratelimit", cfg.RateLimit.Backend,
	)
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	rl := a.Config.RateLimit
	switch rl.Backend {
	case "redis":
		r, err := ratelimit.NewRedisWindow(ctx, rl.RedisAddr, rl.KeyPrefix, rl.Window)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "connect rate limit redis", err)
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	default:
		return ratelimit.NewSlidingWindow(ratelimit.WithWindow(rl.Window)), nil
	}
}

func (a *App) openPatterns(ctx context.Context) (patterns.Store, error) {
	pc := a.Config.Patterns
	switch pc.Driver {
	case "sqlite":
		s, err := patterns.OpenSQLite(pc.DSN, a.Logger)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "open sqlite pattern store", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "postgres":
		s, err := patterns.OpenPostgres(ctx, patterns.PostgresConfig{
			DSN:             pc.DSN,
			MaxConns:        pc.MaxConns,
			MaxConnLifetime: pc.MaxConnLifetime,
			DialTimeout:     pc.DialTimeout,
		}, a.Logger)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "open postgres pattern store", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return patterns.NewMemoryStore(), nil
	}
}

// BuildAdapters creates one adapter per configured provider entry. Provider
// adapters share limiter, keyed by credential, so two entries with the same API
// key draw from one window.
func BuildAdapters(cfg *common.Config, limiter ratelimit.Limiter, logger *slog.Logger) (map[string]llm.Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]llm.Adapter, len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		kind, ok := constants.CanonicalProvider(p.Type)
		if !ok {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("provider %q has unknown type %q", name, p.Type), common.ErrInvalidInput)
		}
		if kind == constants.ProviderHeuristic {
			out[name] = heuristic.New(logger)
			continue
		}

		key := p.APIKey()
		var c llm.Completer
		switch kind {
		case constants.ProviderOpenAI:
			c = openai.NewClient(openai.Config{APIKey: key, BaseURL: p.BaseURL, Model: p.Model, Timeout: cfg.Extraction.Timeout}, logger)
		case constants.ProviderAnthropic:
			c = anthropic.NewClient(anthropic.Config{APIKey: key, BaseURL: p.BaseURL, Model: p.Model, Timeout: cfg.Extraction.Timeout}, logger)
		}
		if key == "" {
			logger.Warn("app.provider_missing_key", "provider", name, "env", p.APIKeyEnv)
		}

		out[name] = llm.NewProviderAdapter(name, c,
			llm.WithLogger(logger),
			llm.WithRateLimit(limiter, ratelimit.CredentialKey(string(kind), key), p.RequestsPerMinute),
			llm.WithPricing(llm.Pricing{InputPerMTok: p.InputPerMTok, OutputPerMTok: p.OutputPerMTok, PerCall: p.PerCallUSD}),
			llm.WithTimeout(cfg.Extraction.Timeout),
			llm.WithRetries(cfg.Extraction.MaxRetries, time.Second),
			llm.WithDefaults(p.Temperature, p.MaxOutputTokens),
		)
	}
	return out, nil
}
