package patterns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// SQLStore keeps patterns in a match_patterns table. The same queries serve SQLite
// and Postgres; only placeholders and the id column differ.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	closers []func()
}

// OpenSQLite opens (creating if needed) a local pattern database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	// modernc.org/sqlite uses a file path as DSN.
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single writer; keeps upserts serialized
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=3000;`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s, err := newSQLStore(db, dialectSQLite, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = db.Close() })
	return s, nil
}

func newSQLStore(db *sql.DB, d dialect, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{db: db, dialect: d, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate pattern store: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idCol := `id INTEGER PRIMARY KEY AUTOINCREMENT`
	if s.dialect == dialectPostgres {
		idCol = `id BIGSERIAL PRIMARY KEY`
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS match_patterns (
  ` + idCol + `,
  supplier_key TEXT NOT NULL,
  supplier_name TEXT NOT NULL,
  signature TEXT NOT NULL,
  trade_id TEXT NOT NULL,
  target_line_item_id TEXT NOT NULL DEFAULT '',
  hit_count INTEGER NOT NULL DEFAULT 1,
  amount_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at_unix_ms BIGINT NOT NULL,
  last_confirmed_at_unix_ms BIGINT NOT NULL,
  UNIQUE (supplier_key, signature, trade_id, target_line_item_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_match_patterns_key ON match_patterns (supplier_key, signature)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle and, for Postgres, the pool behind it.
func (s *SQLStore) Close() error {
	if s == nil {
		return nil
	}
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, supplierName, signature string, amount float64) ([]entity.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, supplier_name, signature, trade_id, target_line_item_id, hit_count, amount_sum, last_confirmed_at_unix_ms
FROM match_patterns
WHERE supplier_key = ? AND signature = ?
ORDER BY id ASC
`), SupplierKey(supplierName), signature)
	if err != nil {
		s.logger.Error("patterns.lookup_failed", "supplier", supplierName, "signature", signature, "error", err)
		return nil, unavailable("lookup", err)
	}
	defer rows.Close()

	var out []entity.Pattern
	for rows.Next() {
		var (
			p        entity.Pattern
			target   string
			sum      float64
			lastUnix int64
		)
		if err := rows.Scan(&p.ID, &p.SupplierName, &p.Signature, &p.TradeID, &target, &p.HitCount, &sum, &lastUnix); err != nil {
			return nil, unavailable("lookup scan", err)
		}
		if target != "" {
			p.TargetLineItemID = &target
		}
		if p.HitCount > 0 {
			p.AvgAmount = sum / float64(p.HitCount)
		}
		p.LastConfirmedAt = time.UnixMilli(lastUnix).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("lookup rows", err)
	}
	return rank(out, amount), nil
}

// Record inserts a new pattern or adds a hit to the identical one. A different trade
// or target for the same key becomes a competing row.
func (s *SQLStore) Record(ctx context.Context, c Confirmation) error {
	c, key, err := c.normalize(time.Now())
	if err != nil {
		return err
	}
	target := ""
	if c.TargetLineItemID != nil {
		target = *c.TargetLineItemID
	}
	at := c.ConfirmedAt.UnixMilli()

	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO match_patterns (
  supplier_key, supplier_name, signature, trade_id, target_line_item_id,
  hit_count, amount_sum, created_at_unix_ms, last_confirmed_at_unix_ms
) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
ON CONFLICT (supplier_key, signature, trade_id, target_line_item_id) DO UPDATE SET
  hit_count = match_patterns.hit_count + 1,
  amount_sum = match_patterns.amount_sum + excluded.amount_sum,
  last_confirmed_at_unix_ms = CASE
    WHEN excluded.last_confirmed_at_unix_ms > match_patterns.last_confirmed_at_unix_ms
    THEN excluded.last_confirmed_at_unix_ms
    ELSE match_patterns.last_confirmed_at_unix_ms
  END
`), key, c.SupplierName, c.Signature, c.TradeID, target, c.Amount, at, at)
	if err != nil {
		s.logger.Error("patterns.record_failed", "supplier", c.SupplierName, "signature", c.Signature, "error", err)
		return unavailable("record", err)
	}
	s.logger.Debug("patterns.recorded", "supplier", c.SupplierName, "signature", c.Signature, "trade_id", c.TradeID, "target", target)
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
