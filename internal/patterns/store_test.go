package patterns

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
)

func ptr(s string) *string { return &s }

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "patterns.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Concrete pour — 50m³, $12,500", "concrete pour"},
		{"POUR CONCRETE", "concrete pour"},
		{"Supply & install timber frames", "frame timber"},
		{"Electrical rough-in (2 days)", "electrical rough"},
		{"", ""},
		{"12 x 450", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Signature(tt.in))
		})
	}
}

func TestSupplierKey(t *testing.T) {
	assert.Equal(t, "acme concrete", SupplierKey("Acme Concrete Pty. Ltd."))
	assert.Equal(t, SupplierKey("ACME CONCRETE"), SupplierKey("Acme Concrete Pty Ltd"))
	assert.Equal(t, "smith son", SupplierKey("Smith & Son LLC"))
}

func TestStore_RecordAndStrengthen(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			c := Confirmation{
				SupplierName:     "Acme Concrete Pty Ltd",
				Description:      "Concrete pour 50m3",
				Amount:           12000,
				TradeID:          "trade-concrete",
				TargetLineItemID: ptr("t-1"),
				ConfirmedAt:      t0,
			}
			require.NoError(t, s.Record(ctx, c))
			c.Amount = 13000
			c.ConfirmedAt = t0.Add(24 * time.Hour)
			require.NoError(t, s.Record(ctx, c))

			got, err := s.Lookup(ctx, "ACME CONCRETE", "concrete pour", 12500)
			require.NoError(t, err)
			require.Len(t, got, 1)
			p := got[0]
			assert.Equal(t, 2, p.HitCount)
			assert.InDelta(t, 1.0, p.Accuracy, 1e-9)
			assert.InDelta(t, 12500, p.AvgAmount, 1e-9)
			assert.Equal(t, "trade-concrete", p.TradeID)
			require.NotNil(t, p.TargetLineItemID)
			assert.Equal(t, "t-1", *p.TargetLineItemID)
			assert.True(t, p.LastConfirmedAt.Equal(t0.Add(24*time.Hour)), "last confirmed %v", p.LastConfirmedAt)
		})
	}
}

func TestStore_ConflictCreatesCompetitor(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := Confirmation{SupplierName: "Acme", Signature: "concrete pour", TradeID: "trade-concrete", TargetLineItemID: ptr("t-1"), Amount: 100,
				ConfirmedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}
			for i := 0; i < 3; i++ {
				require.NoError(t, s.Record(ctx, base))
			}
			rival := base
			rival.TargetLineItemID = ptr("t-9")
			rival.ConfirmedAt = base.ConfirmedAt.Add(time.Hour)
			require.NoError(t, s.Record(ctx, rival))
			tradeOnly := base
			tradeOnly.TargetLineItemID = nil
			tradeOnly.ConfirmedAt = rival.ConfirmedAt
			require.NoError(t, s.Record(ctx, tradeOnly))

			got, err := s.Lookup(ctx, "Acme", "concrete pour", 0)
			require.NoError(t, err)
			require.Len(t, got, 3)

			assert.Equal(t, "t-1", *got[0].TargetLineItemID)
			assert.Equal(t, 3, got[0].HitCount)
			assert.InDelta(t, 0.6, got[0].Accuracy, 1e-9)
			assert.InDelta(t, 0.2, got[1].Accuracy, 1e-9)
			assert.InDelta(t, 0.2, got[2].Accuracy, 1e-9)

			// equal accuracy, hits and recency: earlier row wins
			require.NotNil(t, got[1].TargetLineItemID)
			assert.Equal(t, "t-9", *got[1].TargetLineItemID)
			assert.Nil(t, got[2].TargetLineItemID)
		})
	}
}

func TestStore_LookupMiss(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Lookup(context.Background(), "Nobody", "nothing", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStore_RejectsIncompleteConfirmation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Record(ctx, Confirmation{SupplierName: "Acme", Description: "pour", TradeID: ""})
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			err = s.Record(ctx, Confirmation{SupplierName: "Pty Ltd", Description: "pour", TradeID: "x"})
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			err = s.Record(ctx, Confirmation{SupplierName: "Acme", Description: "50 m3", TradeID: "x"})
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{dialect: dialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
	s.dialect = dialectSQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestSQLStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.db")
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Confirmation{SupplierName: "Acme", Signature: "pour", TradeID: "t"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Lookup(context.Background(), "Acme", "pour", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
