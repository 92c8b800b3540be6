package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peter-wins/tradewatch/internal/upstream"
	"github.com/peter-wins/tradewatch/pkg/equitychart"
)

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS equity_snapshots (
  id TEXT PRIMARY KEY,
  cash_balance TEXT NOT NULL,
  positions_value TEXT NOT NULL,
  total_equity TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_snapshots_ts ON equity_snapshots(ts);`,
		`
CREATE TABLE IF NOT EXISTS decisions (
  id TEXT PRIMARY KEY,
  ts TEXT NOT NULL,
  action TEXT NOT NULL,
  symbol TEXT NOT NULL,
  reason TEXT,
  detail TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// EquitySnapshot is one journalled observation of account equity.
type EquitySnapshot struct {
	CashBalance    decimal.Decimal `json:"cash_balance"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalEquity    decimal.Decimal `json:"total_equity"`
	TS             time.Time       `json:"ts"`
}

func (s *Server) insertEquitySnapshot(ctx context.Context, snap EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO equity_snapshots (id, cash_balance, positions_value, total_equity, ts)
VALUES (?,?,?,?,?)
`, uuid.NewString(), snap.CashBalance.String(), snap.PositionsValue.String(),
		snap.TotalEquity.String(), snap.TS.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

// listEquityPoints returns the newest limit journal snapshots as
// chart input, oldest first.
func (s *Server) listEquityPoints(ctx context.Context, limit int) ([]equitychart.EquityPoint, error) {
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT total_equity, ts
FROM equity_snapshots
ORDER BY ts DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []equitychart.EquityPoint
	for rows.Next() {
		var equityStr, tsStr string
		if err := rows.Scan(&equityStr, &tsStr); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("journal: bad ts %q: %w", tsStr, err)
		}
		eq, err := decimal.NewFromString(equityStr)
		if err != nil {
			return nil, fmt.Errorf("journal: bad equity %q: %w", equityStr, err)
		}
		out = append(out, equitychart.EquityPoint{Timestamp: ts, Value: eq.InexactFloat64()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest-first from the query; chart input wants oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// upsertDecisions journals upstream decision records. Records already
// seen (same id) are skipped.
func (s *Server) upsertDecisions(ctx context.Context, items []upstream.Decision) error {
	for _, d := range items {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			id = uuid.NewString()
		}
		_, err := s.db.ExecContext(ctx, `
INSERT INTO decisions (id, ts, action, symbol, reason, detail)
VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO NOTHING
`, id, d.TS.UTC().Format(time.RFC3339Nano), d.Action, d.Symbol, d.Reason, d.Detail)
		if err != nil {
			return fmt.Errorf("upsert decision %s: %w", id, err)
		}
	}
	return nil
}

func (s *Server) listDecisions(ctx context.Context, limit int) ([]upstream.Decision, error) {
	if limit <= 0 || limit > 2000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ts, action, symbol, COALESCE(reason,''), COALESCE(detail,'')
FROM decisions
ORDER BY ts DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []upstream.Decision
	for rows.Next() {
		var (
			d  upstream.Decision
			ts string
		)
		if err := rows.Scan(&d.ID, &ts, &d.Action, &d.Symbol, &d.Reason, &d.Detail); err != nil {
			return nil, err
		}
		d.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}
