package database

import (
	"context"
	"encoding/json"
	"time"

	"kestrel/internal/event"
	"kestrel/internal/logger"
)

// EventRecorder 把生命周期事件落库，实现 event.Sink。
// 本地 sqlite 写入毫秒级完成；失败只记日志，绝不影响交易循环。
type EventRecorder struct {
	store *Store
}

func NewEventRecorder(store *Store) *EventRecorder {
	return &EventRecorder{store: store}
}

func (r *EventRecorder) Publish(evt event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.store.saveEvent(ctx, evt); err != nil {
		logger.Warnf("事件落库失败 type=%s: %v", evt.Type, err)
	}
}

func (s *Store) saveEvent(ctx context.Context, evt event.Event) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	fields := ""
	if len(evt.Fields) > 0 {
		if buf, err := json.Marshal(evt.Fields); err == nil {
			fields = string(buf)
		}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events (type, pair, decision_id, reason, fields, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(evt.Type), nullIfEmpty(evt.Pair), nullIfEmpty(evt.DecisionID),
		nullIfEmpty(evt.Reason), nullIfEmpty(fields), at.UnixMilli())
	return err
}

// EventRow 事件留痕行。
type EventRow struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Pair       string         `json:"pair,omitempty"`
	DecisionID string         `json:"decision_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	At         time.Time      `json:"at"`
}

// ListEvents 按时间倒序返回事件；eventType 为空时不过滤。
func (s *Store) ListEvents(ctx context.Context, eventType string, limit int) ([]EventRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, type, COALESCE(pair, ''), COALESCE(decision_id, ''), COALESCE(reason, ''),
		       COALESCE(fields, ''), at
		FROM events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		var fields string
		var at int64
		if err := rows.Scan(&row.ID, &row.Type, &row.Pair, &row.DecisionID, &row.Reason, &fields, &at); err != nil {
			return nil, err
		}
		if fields != "" {
			_ = json.Unmarshal([]byte(fields), &row.Fields)
		}
		row.At = time.UnixMilli(at)
		out = append(out, row)
	}
	return out, rows.Err()
}
