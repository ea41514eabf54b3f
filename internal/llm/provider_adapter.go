package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/pagetext"
	"github.com/joseph-ayodele/invoice-matcher/internal/ratelimit"
)

// Pricing converts token usage into dollars.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
	PerCall       float64
}

// Cost of one completed call.
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*p.InputPerMTok/1e6 +
		float64(outputTokens)*p.OutputPerMTok/1e6 +
		p.PerCall
}

// ProviderAdapter turns a Completer into an Adapter. It owns everything the provider
// backends have in common: rate-limit admission, timeouts, transport retries, cost
// accounting and reply parsing.
type ProviderAdapter struct {
	name      string
	completer Completer
	logger    *slog.Logger

	limiter  ratelimit.Limiter
	limitKey string
	rpm      int

	pricing     Pricing
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	temperature float64
	maxTokens   int64
}

type Option func(*ProviderAdapter)

// WithRateLimit admits at most rpm calls per window for key.
func WithRateLimit(l ratelimit.Limiter, key string, rpm int) Option {
	return func(a *ProviderAdapter) {
		a.limiter = l
		a.limitKey = key
		a.rpm = rpm
	}
}

func WithPricing(p Pricing) Option {
	return func(a *ProviderAdapter) { a.pricing = p }
}

func WithTimeout(d time.Duration) Option {
	return func(a *ProviderAdapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRetries sets how often a transient transport failure is retried and the
// first backoff delay; later delays double.
func WithRetries(n int, base time.Duration) Option {
	return func(a *ProviderAdapter) {
		if n >= 0 {
			a.maxRetries = n
		}
		a.baseBackoff = base
	}
}

// WithDefaults sets sampling values used when a request leaves them at zero.
func WithDefaults(temperature float64, maxTokens int64) Option {
	return func(a *ProviderAdapter) {
		a.temperature = temperature
		a.maxTokens = maxTokens
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *ProviderAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewProviderAdapter(name string, c Completer, opts ...Option) *ProviderAdapter {
	a := &ProviderAdapter{
		name:        name,
		completer:   c,
		logger:      slog.Default(),
		timeout:     45 * time.Second,
		maxRetries:  2,
		baseBackoff: time.Second,
		maxTokens:   2048,
	}
	for _, o := range opts {
		o(a)
	}
	if a.limitKey == "" {
		a.limitKey = ratelimit.CredentialKey(name, "")
	}
	return a
}

func (a *ProviderAdapter) Name() string { return a.name }

// Call runs one extraction against the provider. The returned Reply always carries
// cost, tokens and latency; on error it holds whatever was spent before failing.
func (a *ProviderAdapter) Call(ctx context.Context, req ExtractRequest) (Reply, error) {
	rid := uuid.New().String()
	start := time.Now()
	reply := Reply{ParseKind: ParseFailed}

	prompt := BuildPrompt(req)
	if prompt.Temperature == 0 {
		prompt.Temperature = a.temperature
	}
	if prompt.MaxOutputTokens == 0 {
		prompt.MaxOutputTokens = a.maxTokens
	}

	a.logger.Info("llm.extract.start",
		"req_id", rid,
		"method", a.name,
		"page", req.PageNumber,
		"text_len", len(req.Text),
		"attachment", len(prompt.Attachment) > 0,
	)

	var completion Completion
	for attempt := 0; ; attempt++ {
		if err := a.admit(ctx); err != nil {
			reply.Latency = time.Since(start)
			a.logger.Warn("llm.extract.rate_limited", "req_id", rid, "method", a.name, "error", err)
			return reply, err
		}

		c, err := a.complete(ctx, prompt)
		if err == nil {
			completion = c
			break
		}
		if ctx.Err() != nil {
			reply.Latency = time.Since(start)
			return reply, fmt.Errorf("%s: %w", a.name, ctx.Err())
		}
		if !IsRetryable(err) || attempt >= a.maxRetries {
			reply.Latency = time.Since(start)
			a.logger.Error("llm.extract.transport_error",
				"req_id", rid, "method", a.name, "attempts", attempt+1, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			if errors.Is(err, common.ErrTransport) {
				return reply, err
			}
			return reply, fmt.Errorf("%w: %s: %v", common.ErrTransport, a.name, err)
		}
		a.logger.Warn("llm.extract.retry", "req_id", rid, "method", a.name, "attempt", attempt+1, "error", err)
		if err := sleepBackoff(ctx, a.baseBackoff, attempt+1); err != nil {
			reply.Latency = time.Since(start)
			return reply, fmt.Errorf("%s: %w", a.name, err)
		}
	}

	reply.Cost = a.pricing.Cost(completion.InputTokens, completion.OutputTokens)
	reply.TokensUsed = completion.InputTokens + completion.OutputTokens
	reply.Raw = completion.Text

	invoices, kind, err := ParseReply(completion.Text, req, a.logger)
	reply.ParseKind = kind
	reply.Latency = time.Since(start)
	if err != nil {
		a.logger.Error("llm.extract.malformed_reply",
			"req_id", rid, "method", a.name, "error", err,
			"raw_snippet", snippet(completion.Text, 240),
			"cost_usd", reply.Cost,
			"elapsed_ms", reply.Latency.Milliseconds(),
		)
		return reply, err
	}

	reply.Invoices = invoices
	reply.Confidence = MeanConfidence(invoices)

	a.logger.Info("llm.extract.ok",
		"req_id", rid,
		"method", a.name,
		"records", len(invoices),
		"parse", string(kind),
		"confidence", reply.Confidence,
		"tokens", reply.TokensUsed,
		"cost_usd", reply.Cost,
		"elapsed_ms", reply.Latency.Milliseconds(),
	)
	return reply, nil
}

func (a *ProviderAdapter) admit(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	ok, err := a.limiter.Allow(ctx, a.limitKey, a.rpm)
	if err != nil {
		return fmt.Errorf("%w: %s: limiter unavailable: %v", common.ErrRateLimited, a.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s: %d requests per window in use", common.ErrRateLimited, a.name, a.rpm)
	}
	return nil
}

func (a *ProviderAdapter) complete(ctx context.Context, p Prompt) (Completion, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	c, err := a.completer.Complete(cctx, p)
	if err != nil && cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return c, Retryable(fmt.Errorf("%w: timed out after %s", common.ErrTransport, a.timeout))
	}
	return c, err
}

func snippet(s string, n int) string {
	out, cut := pagetext.Truncate(s, n)
	if cut {
		out += "…"
	}
	return out
}
