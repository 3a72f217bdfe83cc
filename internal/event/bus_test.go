package event

import (
	"testing"
	"time"
)

func TestBusFansOutToAllSinks(t *testing.T) {
	b := NewBus(8)
	var got1, got2 []Event
	b.Attach(SinkFunc(func(e Event) { got1 = append(got1, e) }))
	b.Attach(SinkFunc(func(e Event) { got2 = append(got2, e) }))

	b.Emit(Event{Type: TradeExecuted, Pair: "BTCUSDT"})
	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("两个 sink 都应收到事件, 得到 %d/%d", len(got1), len(got2))
	}
	if got1[0].Type != TradeExecuted {
		t.Fatalf("事件类型不符: %s", got1[0].Type)
	}
}

func TestBusStampsMissingTimestamp(t *testing.T) {
	b := NewBus(8)
	var got Event
	b.Attach(SinkFunc(func(e Event) { got = e }))

	b.Emit(Event{Type: RiskRejected})
	if got.At.IsZero() {
		t.Fatalf("总线应补齐时间戳")
	}
	stamp := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	b.Emit(Event{Type: RiskRejected, At: stamp})
	if !got.At.Equal(stamp) {
		t.Fatalf("已有时间戳不得覆盖, 得到 %s", got.At)
	}
}

func TestBusRecentKeepsBoundedHistory(t *testing.T) {
	b := NewBus(3)
	for i := 0; i < 5; i++ {
		b.Emit(Event{Type: TradeFailed, Reason: string(rune('a' + i))})
	}
	got := b.Recent(10)
	if len(got) != 3 {
		t.Fatalf("环形缓冲上限 3, 得到 %d", len(got))
	}
	// 旧→新顺序, 只剩最近 3 条 c/d/e
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if got[i].Reason != w {
			t.Fatalf("第 %d 条期望 %s, 得到 %s", i, w, got[i].Reason)
		}
	}
	if got := b.Recent(2); len(got) != 2 || got[1].Reason != "e" {
		t.Fatalf("limit=2 应取最新两条, 得到 %+v", got)
	}
}

func TestBusRecentBeforeWrap(t *testing.T) {
	b := NewBus(5)
	b.Emit(Event{Type: RecoveryComplete})
	b.Emit(Event{Type: TradeExecuted})
	got := b.Recent(10)
	if len(got) != 2 {
		t.Fatalf("未写满时应只返回已有事件, 得到 %d", len(got))
	}
	if got[0].Type != RecoveryComplete || got[1].Type != TradeExecuted {
		t.Fatalf("顺序应为旧→新, 得到 %+v", got)
	}
}

func TestBusRecentEmpty(t *testing.T) {
	b := NewBus(4)
	if got := b.Recent(10); got != nil {
		t.Fatalf("空总线期望 nil, 得到 %+v", got)
	}
}

func TestEventFieldLookup(t *testing.T) {
	e := Event{Type: TradeExecuted, Fields: map[string]any{"trade_id": "t-1"}}
	if v, ok := e.Field("trade_id"); !ok || v != "t-1" {
		t.Fatalf("期望 t-1, 得到 %v/%v", v, ok)
	}
	if _, ok := e.Field("missing"); ok {
		t.Fatalf("缺失键应返回 ok=false")
	}
	if _, ok := (Event{}).Field("any"); ok {
		t.Fatalf("nil Fields 应返回 ok=false")
	}
}
