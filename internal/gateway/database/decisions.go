package database

import (
	"context"
	"strings"
	"time"

	"kestrel/internal/decision"
)

// DecisionRow 决策留痕行。Providers 以逗号拼接存储。
type DecisionRow struct {
	ID          string    `json:"id"`
	Pair        string    `json:"pair"`
	Action      string    `json:"action"`
	Confidence  float64   `json:"confidence"`
	SizePct     float64   `json:"size_pct"`
	StopLossPct float64   `json:"stop_loss_pct"`
	Reasoning   string    `json:"reasoning"`
	Providers   []string  `json:"providers"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveDecision 落一条决策。同 ID 重复写入按覆盖处理。
func (s *Store) SaveDecision(ctx context.Context, d decision.Decision) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO decisions (id, pair, action, confidence, size_pct, stop_loss_pct, reasoning, providers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pair=excluded.pair,
			action=excluded.action,
			confidence=excluded.confidence,
			size_pct=excluded.size_pct,
			stop_loss_pct=excluded.stop_loss_pct,
			reasoning=excluded.reasoning,
			providers=excluded.providers`,
		d.ID, d.Pair, d.Action, d.Confidence, d.SizePct, d.StopLossPct,
		d.Reasoning, strings.Join(d.Providers, ","), createdAt.UnixMilli())
	return err
}

// ListDecisions 按时间倒序返回最近的决策。
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]DecisionRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, pair, action, confidence, size_pct, stop_loss_pct,
		       COALESCE(reasoning, ''), COALESCE(providers, ''), created_at
		FROM decisions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var row DecisionRow
		var providers string
		var createdAt int64
		if err := rows.Scan(&row.ID, &row.Pair, &row.Action, &row.Confidence,
			&row.SizePct, &row.StopLossPct, &row.Reasoning, &providers, &createdAt); err != nil {
			return nil, err
		}
		if providers != "" {
			row.Providers = strings.Split(providers, ",")
		}
		row.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, row)
	}
	return out, rows.Err()
}
