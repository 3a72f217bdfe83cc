package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"kestrel/internal/agent"
	"kestrel/internal/decision"
	"kestrel/internal/event"
	"kestrel/internal/execution"
	"kestrel/internal/gateway/database"
)

// 向 SQLite 灌入模拟的决策/周期/成交/事件数据，便于在不连交易所的
// 情况下调试运维接口与后台页面。
// 用法: go run scripts/seed_mock_data.go [db_path]
// 默认 db_path: data/kestrel.db
func main() {
	dbPath := "data/kestrel.db"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		dbPath = strings.TrimSpace(os.Args[1])
	}

	store, err := database.Open(dbPath)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := seed(ctx, store); err != nil {
		panic(err)
	}
	fmt.Printf("✓ 模拟数据已写入 %s\n", dbPath)
}

func seed(ctx context.Context, store *database.Store) error {
	now := time.Now()

	type sample struct {
		pair       string
		action     string
		confidence float64
		sizePct    float64
		stopPct    float64
		reasoning  string
		outcome    string
		reject     string
		age        time.Duration
		filled     bool
		qty        float64
		avg        float64
	}
	samples := []sample{
		{
			pair: "BTCUSDT", action: decision.ActionBuy, confidence: 0.82,
			sizePct: 3, stopPct: 2.5,
			reasoning: "多头趋势延续，量能放大，上破 1h 区间。",
			outcome:   agent.OutcomeFilled, age: 30 * time.Minute,
			filled: true, qty: 0.015, avg: 66200,
		},
		{
			pair: "SOLUSDT", action: decision.ActionSell, confidence: 0.68,
			sizePct: 2, stopPct: 3,
			reasoning: "4h 结构破位，成交量下滑；RSI 顶背离。",
			outcome:   agent.OutcomeRejected, reject: "var_limit", age: 2 * time.Hour,
		},
		{
			pair: "ETHUSDT", action: decision.ActionHold, confidence: 0.55,
			reasoning: "震荡区间中部，无明确方向。",
			outcome:   agent.OutcomeHold, age: 6 * time.Hour,
		},
	}

	for _, s := range samples {
		at := now.Add(-s.age)
		d := decision.Decision{
			ID:          uuid.NewString(),
			Pair:        s.pair,
			Action:      s.action,
			Confidence:  s.confidence,
			SizePct:     s.sizePct,
			StopLossPct: s.stopPct,
			Reasoning:   s.reasoning,
			Providers:   []string{"gpt-4o", "deepseek-chat"},
			CreatedAt:   at,
		}
		if err := store.SaveDecision(ctx, d); err != nil {
			return err
		}

		rec := agent.CycleRecord{
			CycleID:      uuid.NewString(),
			Pair:         s.pair,
			Outcome:      s.outcome,
			DecisionID:   d.ID,
			Action:       s.action,
			Confidence:   s.confidence,
			RejectReason: s.reject,
			StartedAt:    at,
			FinishedAt:   at.Add(3 * time.Second),
		}

		switch {
		case s.filled:
			trade := execution.TradeRecord{
				TradeID:    uuid.NewString(),
				DecisionID: d.ID,
				Pair:       s.pair,
				Side:       s.action,
				Quantity:   s.qty,
				AvgPrice:   s.avg,
				Notional:   s.qty * s.avg,
				ExecutedAt: at.Add(2 * time.Second),
			}
			if err := store.RecordTrade(ctx, trade); err != nil {
				return err
			}
			rec.TradeID = trade.TradeID
			database.NewEventRecorder(store).Publish(event.Event{
				Type: event.TradeExecuted, Pair: s.pair, DecisionID: d.ID,
				Fields: map[string]any{
					"trade_id": trade.TradeID, "quantity": trade.Quantity,
					"avg_price": trade.AvgPrice, "notional": trade.Notional,
				},
				At: trade.ExecutedAt,
			})
		case s.reject != "":
			database.NewEventRecorder(store).Publish(event.Event{
				Type: event.RiskRejected, Pair: s.pair, DecisionID: d.ID,
				Reason: s.reject,
				Fields: map[string]any{"detail": "模拟拒绝"},
				At:     at.Add(time.Second),
			})
		}

		if err := store.RecordCycle(ctx, rec); err != nil {
			return err
		}
	}

	database.NewEventRecorder(store).Publish(event.Event{
		Type:   event.RecoveryComplete,
		Fields: map[string]any{"positions_found": 1, "actions_taken": 0, "degraded": false},
		At:     now.Add(-7 * time.Hour),
	})
	return nil
}
