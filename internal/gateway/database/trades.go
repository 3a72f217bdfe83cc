package database

import (
	"context"
	"time"

	"kestrel/internal/execution"
)

var _ execution.Recorder = (*Store)(nil)

// RecordTrade 实现 execution.Recorder。交易所重推同一 trade_id 时覆盖更新。
func (s *Store) RecordTrade(ctx context.Context, rec execution.TradeRecord) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	executedAt := rec.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO trades (trade_id, decision_id, pair, side, quantity, avg_price, notional, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			quantity=excluded.quantity,
			avg_price=excluded.avg_price,
			notional=excluded.notional`,
		rec.TradeID, nullIfEmpty(rec.DecisionID), rec.Pair, rec.Side,
		rec.Quantity, rec.AvgPrice, rec.Notional, executedAt.UnixMilli())
	return err
}

// TradeRow 成交留痕行。
type TradeRow struct {
	TradeID    string    `json:"trade_id"`
	DecisionID string    `json:"decision_id,omitempty"`
	Pair       string    `json:"pair"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	AvgPrice   float64   `json:"avg_price"`
	Notional   float64   `json:"notional"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ListTrades 按成交时间倒序返回最近的成交。
func (s *Store) ListTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT trade_id, COALESCE(decision_id, ''), pair, side, quantity, avg_price, notional, executed_at
		FROM trades
		ORDER BY executed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var row TradeRow
		var executedAt int64
		if err := rows.Scan(&row.TradeID, &row.DecisionID, &row.Pair, &row.Side,
			&row.Quantity, &row.AvgPrice, &row.Notional, &executedAt); err != nil {
			return nil, err
		}
		row.ExecutedAt = time.UnixMilli(executedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountTradesToday 返回 UTC 当日的成交笔数，重启后恢复日内限额用。
func (s *Store) CountTradesToday(ctx context.Context, now time.Time) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	dayStart := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE executed_at >= ?`,
		dayStart.UnixMilli()).Scan(&count)
	return count, err
}
