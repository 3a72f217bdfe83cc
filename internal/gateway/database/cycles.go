package database

import (
	"context"
	"time"

	"kestrel/internal/agent"
)

var _ agent.OutcomeRecorder = (*Store)(nil)

// RecordCycle 实现 agent.OutcomeRecorder，LEARNING 阶段调用。
func (s *Store) RecordCycle(ctx context.Context, rec agent.CycleRecord) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, pair, outcome, decision_id, action, confidence,
		                    reject_reason, trade_id, failure, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO UPDATE SET
			outcome=excluded.outcome,
			trade_id=excluded.trade_id,
			failure=excluded.failure,
			finished_at=excluded.finished_at`,
		rec.CycleID, rec.Pair, rec.Outcome, nullIfEmpty(rec.DecisionID), nullIfEmpty(rec.Action),
		rec.Confidence, nullIfEmpty(rec.RejectReason), nullIfEmpty(rec.TradeID), nullIfEmpty(rec.Failure),
		rec.StartedAt.UnixMilli(), finished.UnixMilli())
	return err
}

// CycleRow 周期留痕行，运维接口返回用。
type CycleRow struct {
	CycleID      string    `json:"cycle_id"`
	Pair         string    `json:"pair"`
	Outcome      string    `json:"outcome"`
	DecisionID   string    `json:"decision_id,omitempty"`
	Action       string    `json:"action,omitempty"`
	Confidence   float64   `json:"confidence"`
	RejectReason string    `json:"reject_reason,omitempty"`
	TradeID      string    `json:"trade_id,omitempty"`
	Failure      string    `json:"failure,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ListCycles 按开始时间倒序返回最近的周期。
func (s *Store) ListCycles(ctx context.Context, limit int) ([]CycleRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT cycle_id, pair, outcome, COALESCE(decision_id, ''), COALESCE(action, ''), confidence,
		       COALESCE(reject_reason, ''), COALESCE(trade_id, ''), COALESCE(failure, ''),
		       started_at, finished_at
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var row CycleRow
		var startedAt, finishedAt int64
		if err := rows.Scan(&row.CycleID, &row.Pair, &row.Outcome, &row.DecisionID, &row.Action,
			&row.Confidence, &row.RejectReason, &row.TradeID, &row.Failure, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		row.StartedAt = time.UnixMilli(startedAt)
		row.FinishedAt = time.UnixMilli(finishedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
