package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/heuristic"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

type stubMethod struct {
	name  string
	conf  float64
	cost  float64
	err   error
	raw   string
	hook  func(ctx context.Context, req llm.ExtractRequest)
	calls atomic.Int32
}

func (s *stubMethod) Name() string { return s.name }

func (s *stubMethod) Call(ctx context.Context, req llm.ExtractRequest) (llm.Reply, error) {
	s.calls.Add(1)
	if s.hook != nil {
		s.hook(ctx, req)
	}
	if s.err != nil {
		return llm.Reply{Cost: s.cost, ParseKind: llm.ParseFailed, Raw: s.raw}, s.err
	}
	inv := entity.ExtractedInvoice{VendorName: s.name, PageNumber: req.PageNumber, Confidence: s.conf}
	return llm.Reply{
		Invoices:   []entity.ExtractedInvoice{inv},
		Confidence: s.conf,
		Cost:       s.cost,
		ParseKind:  llm.ParseStrict,
		Latency:    time.Millisecond,
	}, nil
}

func orchestrator(t *testing.T, costCap, threshold float64, methods ...*stubMethod) *Orchestrator {
	t.Helper()
	chain := make([]string, 0, len(methods))
	set := make(map[string]llm.Adapter, len(methods))
	for _, m := range methods {
		chain = append(chain, m.name)
		set[m.name] = m
	}
	o, err := New(common.ExtractionConfig{
		Chain:               chain,
		CostCapUSD:          costCap,
		ConfidenceThreshold: threshold,
		Workers:             2,
	}, set, nil)
	require.NoError(t, err)
	return o
}

func sumCost(atts []Attempt) float64 {
	var s float64
	for _, a := range atts {
		s += a.Cost
	}
	return s
}

func TestExtract_FallsThroughToProvider(t *testing.T) {
	h := &stubMethod{name: "heuristic", conf: 0.5}
	a := &stubMethod{name: "providerA", conf: 0.9, cost: 0.02}
	o := orchestrator(t, 1.00, 0.8, h, a)

	res := o.ExtractPage(context.Background(), "TAX INVOICE ...", 1, llm.Hints{})

	assert.True(t, res.Success)
	assert.Equal(t, "providerA", res.Strategy)
	require.Len(t, res.Attempts, 2)
	assert.InDelta(t, 0.02, res.TotalCost, 1e-9)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, constants.HaltAccepted, res.Halt)
	assert.Equal(t, constants.OutcomeBelowThreshold, res.Attempts[0].Outcome)
	assert.Equal(t, constants.OutcomeAccepted, res.Attempts[1].Outcome)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "providerA", res.Invoice.VendorName)
	assert.NoError(t, res.Err())
}

func TestExtract_ShortCircuit(t *testing.T) {
	h := &stubMethod{name: "heuristic", conf: 0.85}
	a := &stubMethod{name: "providerA", conf: 0.95, cost: 0.02}
	b := &stubMethod{name: "providerB", conf: 0.99, cost: 0.10}
	o := orchestrator(t, 1.00, 0.8, h, a, b)

	res := o.Extract(context.Background(), llm.ExtractRequest{Text: "x"})

	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "heuristic", res.Strategy)
	assert.Zero(t, res.TotalCost)
	assert.Equal(t, []string{"providerA", "providerB"}, res.Skipped)
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, b.calls.Load())
}

func TestExtract_RealHeuristicShortCircuits(t *testing.T) {
	a := &stubMethod{name: "providerA", conf: 0.95, cost: 0.02}
	o, err := New(common.ExtractionConfig{Chain: []string{"heuristic", "providerA"}, CostCapUSD: 1, ConfidenceThreshold: 0.8},
		map[string]llm.Adapter{"heuristic": heuristic.New(nil), "providerA": a}, nil)
	require.NoError(t, err)

	text := "TAX INVOICE\nAcme Concrete Pty Ltd\nInvoice No: INV-7\nDate: 2026-03-12\n" +
		"Concrete pour    1    $12,500.00\nSubtotal    $12,500.00\nGST    $1,250.00\nTotal    $13,750.00\n"
	res := o.ExtractPage(context.Background(), text, 1, llm.Hints{})

	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "heuristic", res.Strategy)
	assert.Equal(t, "INV-7", res.Invoice.InvoiceNumber)
	assert.Zero(t, a.calls.Load())
}

func TestExtract_KeepsBestBelowThreshold(t *testing.T) {
	h := &stubMethod{name: "heuristic", conf: 0.4}
	a := &stubMethod{name: "providerA", conf: 0.7, cost: 0.02}
	b := &stubMethod{name: "providerB", conf: 0.6, cost: 0.05}
	o := orchestrator(t, 1.00, 0.8, h, a, b)

	res := o.Extract(context.Background(), llm.ExtractRequest{})

	assert.True(t, res.Success)
	assert.Equal(t, "providerA", res.Strategy)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Len(t, res.Attempts, 3)
	assert.Equal(t, constants.HaltExhausted, res.Halt)
	assert.InDelta(t, 0.07, res.TotalCost, 1e-9)
	assert.NoError(t, res.Err())
}

func TestExtract_EqualConfidenceKeepsEarlier(t *testing.T) {
	a := &stubMethod{name: "providerA", conf: 0.6, cost: 0.01}
	b := &stubMethod{name: "providerB", conf: 0.6, cost: 0.01}
	o := orchestrator(t, 1.00, 0.8, a, b)

	res := o.Extract(context.Background(), llm.ExtractRequest{})
	assert.Equal(t, "providerA", res.Strategy)
}

func TestExtract_CostCapHaltsChain(t *testing.T) {
	a := &stubMethod{name: "providerA", conf: 0.5, cost: 0.60}
	b := &stubMethod{name: "providerB", conf: 0.6, cost: 0.60}
	c := &stubMethod{name: "providerC", conf: 0.99, cost: 0.01}
	o := orchestrator(t, 1.00, 0.8, a, b, c)

	res := o.Extract(context.Background(), llm.ExtractRequest{})

	assert.Equal(t, constants.HaltCostCap, res.Halt)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, []string{"providerC"}, res.Skipped)
	assert.Zero(t, c.calls.Load())
	assert.InDelta(t, sumCost(res.Attempts), res.TotalCost, 1e-9)
	assert.LessOrEqual(t, res.TotalCost, 1.00+0.60)

	// the best result is still reported alongside the halt
	assert.True(t, res.Success)
	assert.Equal(t, "providerB", res.Strategy)
	assert.ErrorIs(t, res.Err(), common.ErrCostCapExceeded)
}

func TestExtractWithBudget_CountsEarlierSpend(t *testing.T) {
	a := &stubMethod{name: "providerA", conf: 0.5, cost: 0.30}
	b := &stubMethod{name: "providerB", conf: 0.9, cost: 0.30}
	o := orchestrator(t, 1.00, 0.8, a, b)

	res := o.ExtractWithBudget(context.Background(), llm.ExtractRequest{PageNumber: 2}, 0.80)
	assert.Equal(t, constants.HaltCostCap, res.Halt)
	assert.Equal(t, []string{"providerB"}, res.Skipped)
	assert.InDelta(t, 0.30, res.TotalCost, 1e-9)

	res = o.ExtractWithBudget(context.Background(), llm.ExtractRequest{PageNumber: 3}, 1.00)
	assert.Equal(t, constants.HaltCostCap, res.Halt)
	assert.Empty(t, res.Attempts)
	assert.False(t, res.Success)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.Zero(t, b.calls.Load())
}

func TestExtract_FailuresBecomeAttempts(t *testing.T) {
	rl := &stubMethod{name: "providerA", err: fmt.Errorf("%w: providerA", common.ErrRateLimited)}
	bad := &stubMethod{name: "providerB", cost: 0.03, raw: "I could not read this",
		err: fmt.Errorf("%w: no JSON", common.ErrMalformedResponse)}
	tr := &stubMethod{name: "providerC", err: fmt.Errorf("%w: connection reset", common.ErrTransport)}
	other := &stubMethod{name: "providerD", err: errors.New("boom")}
	o := orchestrator(t, 1.00, 0.8, rl, bad, tr, other)

	res := o.Extract(context.Background(), llm.ExtractRequest{})

	assert.False(t, res.Success)
	assert.Nil(t, res.Invoice)
	require.Len(t, res.Attempts, 4)
	assert.Equal(t, constants.OutcomeRateLimited, res.Attempts[0].Outcome)
	assert.Zero(t, res.Attempts[0].Cost)
	assert.Equal(t, constants.OutcomeMalformed, res.Attempts[1].Outcome)
	assert.Equal(t, "I could not read this", res.Attempts[1].RawSnippet)
	assert.Equal(t, constants.OutcomeTransport, res.Attempts[2].Outcome)
	assert.Equal(t, constants.OutcomeFailed, res.Attempts[3].Outcome)
	for _, a := range res.Attempts {
		assert.False(t, a.Success)
		assert.NotEmpty(t, a.Error)
	}
	assert.InDelta(t, 0.03, res.TotalCost, 1e-9)
	assert.Equal(t, constants.HaltExhausted, res.Halt)
	assert.Error(t, res.Err())
}

func TestExtract_CancellationStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &stubMethod{name: "providerA", conf: 0.5, cost: 0.02,
		hook: func(context.Context, llm.ExtractRequest) { cancel() }}
	b := &stubMethod{name: "providerB", conf: 0.99, cost: 0.02}
	o := orchestrator(t, 1.00, 0.8, a, b)

	res := o.Extract(ctx, llm.ExtractRequest{})

	assert.Equal(t, constants.HaltCancelled, res.Halt)
	assert.Len(t, res.Attempts, 1)
	assert.Zero(t, b.calls.Load())
	// cost already incurred stays on the books
	assert.InDelta(t, 0.02, res.TotalCost, 1e-9)
	assert.True(t, res.Success)
}

func TestNew_ConfigErrors(t *testing.T) {
	_, err := New(common.ExtractionConfig{}, map[string]llm.Adapter{}, nil)
	assert.ErrorIs(t, err, common.ErrNoMethods)

	_, err = New(common.ExtractionConfig{Chain: []string{"missing"}}, map[string]llm.Adapter{}, nil)
	assert.ErrorIs(t, err, common.ErrNoMethods)

	h := heuristic.New(nil)
	_, err = New(common.ExtractionConfig{Chain: []string{"heuristic", "heuristic"}},
		map[string]llm.Adapter{"heuristic": h}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

type concurrencyGauge struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func TestBatch_BoundedAndOrdered(t *testing.T) {
	gauge := &concurrencyGauge{}
	m := &stubMethod{name: "providerA", conf: 0.9, cost: 0.01,
		hook: func(context.Context, llm.ExtractRequest) {
			gauge.mu.Lock()
			gauge.inFlight++
			gauge.peak = max(gauge.peak, gauge.inFlight)
			gauge.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			gauge.mu.Lock()
			gauge.inFlight--
			gauge.mu.Unlock()
		}}
	o := orchestrator(t, 1.00, 0.8, m)

	docs := make([]Document, 6)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprintf("doc-%d", i), Request: llm.ExtractRequest{PageNumber: i + 1}}
	}
	out := o.Batch(context.Background(), docs)

	require.Len(t, out, 6)
	for i, r := range out {
		assert.Equal(t, fmt.Sprintf("doc-%d", i), r.DocumentID)
		assert.Equal(t, i+1, r.Result.Invoice.PageNumber)
	}
	assert.LessOrEqual(t, gauge.peak, 2)
	assert.EqualValues(t, 6, m.calls.Load())
}

func TestBatch_CancelledContext(t *testing.T) {
	m := &stubMethod{name: "providerA", conf: 0.9}
	o := orchestrator(t, 1.00, 0.8, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := o.Batch(ctx, []Document{{ID: "a"}, {ID: "b"}})

	for _, r := range out {
		assert.Equal(t, constants.HaltCancelled, r.Result.Halt)
		assert.Empty(t, r.Result.Attempts)
	}
	assert.Zero(t, m.calls.Load())
}
