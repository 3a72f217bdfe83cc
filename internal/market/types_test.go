package market

import (
	"strings"
	"testing"
	"time"
)

func TestSnapshotStale(t *testing.T) {
	now := time.Now()
	maxAge := 15 * time.Minute

	fresh := Snapshot{CollectedAt: now.Add(-time.Minute)}
	if fresh.Stale(maxAge, now) {
		t.Fatalf("1 分钟前的快照不应过期")
	}
	old := Snapshot{CollectedAt: now.Add(-16 * time.Minute)}
	if !old.Stale(maxAge, now) {
		t.Fatalf("16 分钟前的快照应过期")
	}
	// 零值采集时间一律视为过期, 不管阈值多大
	var zero Snapshot
	if !zero.Stale(24*time.Hour, now) {
		t.Fatalf("零值 CollectedAt 必须判过期")
	}
}

func TestSnapshotAgeOfZeroTime(t *testing.T) {
	var s Snapshot
	if age := s.Age(time.Now()); age < 100*365*24*time.Hour {
		t.Fatalf("零值快照的年龄应大到不可用, 得到 %s", age)
	}
}

func TestCandlesReturnsSkipZeroBase(t *testing.T) {
	cs := Candles{
		{Close: 100},
		{Close: 110},
		{Close: 0},
		{Close: 99},
	}
	rets := cs.Returns()
	// 0 收盘的基准被跳过: (110-100)/100 与 (0-110)/110 两个样本
	if len(rets) != 2 {
		t.Fatalf("期望 2 个样本, 得到 %d: %v", len(rets), rets)
	}
	if rets[0] != 0.1 {
		t.Fatalf("首个收益率期望 0.1, 得到 %v", rets[0])
	}
	if got := (Candles{{Close: 100}}).Returns(); got != nil {
		t.Fatalf("单根 K 线无收益率, 得到 %v", got)
	}
}

func TestCandlesSummary(t *testing.T) {
	cs := series(100, 102, 101, 105)
	s := cs.Summary("4h")
	if !strings.Contains(s, "close≈105") {
		t.Fatalf("摘要应含末根收盘, 得到 %q", s)
	}
	if !strings.Contains(s, "+5.00%/4h") {
		t.Fatalf("摘要应含整窗涨跌, 得到 %q", s)
	}
	if (Candles{}).Summary("4h") != "" {
		t.Fatalf("空序列摘要应为空串")
	}
}

func TestCandleTimeString(t *testing.T) {
	c := Candle{CloseTime: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC).UnixMilli()}
	if got := c.TimeString(); got != "03-01 12:30Z" {
		t.Fatalf("期望 03-01 12:30Z, 得到 %q", got)
	}
	if got := (Candle{}).TimeString(); got != "-" {
		t.Fatalf("零值 K 线期望 -, 得到 %q", got)
	}
}
