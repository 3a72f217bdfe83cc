package risk

import (
	"strings"
	"testing"
	"time"

	"kestrel/internal/decision"
	"kestrel/internal/market"
	"kestrel/internal/venue"
)

type stubReturns map[string][]float64

func (s stubReturns) ReturnsFor(pair string) []float64 { return s[pair] }

func testConfig() Config {
	return Config{
		CorrelationThreshold: 0.7,
		MaxCorrelatedAssets:  3,
		VaRConfidence:        0.95,
		MaxVaRPct:            5,
		MarginBufferPct:      10,
		SnapshotMaxAge:       15 * time.Minute,
		DefaultSizePct:       2,
	}
}

func newTestGate(returns stubReturns) (*Gatekeeper, *CooldownCache) {
	cooldown := NewCooldownCache(time.Minute)
	return NewGatekeeper(testConfig(), cooldown, returns), cooldown
}

func buy(pair string, sizePct float64) decision.Decision {
	return decision.Decision{ID: "d-1", Pair: pair, Action: decision.ActionBuy, Confidence: 0.8, SizePct: sizePct}
}

func fresh(pair string) market.Snapshot {
	return market.Snapshot{Pair: pair, Price: 100, CollectedAt: time.Now()}
}

func funded(total, available float64) venue.Portfolio {
	return venue.Portfolio{Balance: venue.Balance{Total: total, Available: available}, FetchedAt: time.Now()}
}

func TestHoldApprovedWithoutAnyCheck(t *testing.T) {
	gate, cooldown := newTestGate(stubReturns{})
	// 行情刻意过期: HOLD 连新鲜度都不查
	stale := market.Snapshot{Pair: "BTCUSDT", CollectedAt: time.Now().Add(-time.Hour)}
	v := gate.Evaluate(decision.Decision{Pair: "BTCUSDT", Action: decision.ActionHold}, stale, venue.Portfolio{})
	if !v.Approved {
		t.Fatalf("HOLD 应直接放行, 得到 %+v", v)
	}
	if got := cooldown.Snapshot(time.Now()); len(got) != 0 {
		t.Fatalf("放行不得留下冷却记录, 得到 %+v", got)
	}
}

func TestCooldownCheckedBeforeEverythingElse(t *testing.T) {
	gate, cooldown := newTestGate(stubReturns{})
	d := buy("BTCUSDT", 2)
	cooldown.Put(d.Fingerprint(), ReasonMargin, time.Now())

	// 行情同样过期: 若顺序不对会先报 stale_data
	stale := market.Snapshot{Pair: "BTCUSDT", CollectedAt: time.Now().Add(-time.Hour)}
	v := gate.Evaluate(d, stale, funded(1000, 1000))
	if v.Approved || v.Reason != ReasonCooldown {
		t.Fatalf("期望 cooldown_active 优先, 得到 %+v", v)
	}
}

func TestStaleDataRejectedAndCooled(t *testing.T) {
	gate, cooldown := newTestGate(stubReturns{})
	d := buy("BTCUSDT", 2)
	stale := market.Snapshot{Pair: "BTCUSDT", Price: 100, CollectedAt: time.Now().Add(-time.Hour)}

	v := gate.Evaluate(d, stale, funded(1000, 1000))
	if v.Approved || v.Reason != ReasonStaleData {
		t.Fatalf("期望 stale_data, 得到 %+v", v)
	}
	if _, active := cooldown.Active(d.Fingerprint(), time.Now()); !active {
		t.Fatalf("拒绝后指纹应进入冷却")
	}
}

func TestCorrelationLimitRejected(t *testing.T) {
	series := []float64{0.01, -0.02, 0.03, 0.015, -0.01}
	returns := stubReturns{"ETHUSDT": series, "SOLUSDT": series, "BNBUSDT": series}
	gate, _ := newTestGate(returns)

	snap := fresh("BTCUSDT")
	snap.Returns = series // 与全部持仓完全同步
	portfolio := funded(10000, 10000)
	portfolio.Positions = []venue.Position{
		{Pair: "ETHUSDT", Size: 1, MarkPrice: 100},
		{Pair: "SOLUSDT", Size: 1, MarkPrice: 100},
		{Pair: "BNBUSDT", Size: 1, MarkPrice: 100},
	}
	v := gate.Evaluate(buy("BTCUSDT", 2), snap, portfolio)
	if v.Approved || v.Reason != ReasonCorrelation {
		t.Fatalf("期望 correlation_limit, 得到 %+v", v)
	}
}

func TestCorrelationSkippedWithoutCandidateSeries(t *testing.T) {
	// 候选收益率不足 3 个样本: 相关性检查跳过, 资金检查兜底
	gate, _ := newTestGate(stubReturns{"ETHUSDT": {0.01, 0.02, 0.03, 0.04}})
	portfolio := funded(10000, 10000)
	portfolio.Positions = []venue.Position{{Pair: "ETHUSDT", Size: 1, MarkPrice: 100}}

	v := gate.Evaluate(buy("BTCUSDT", 2), fresh("BTCUSDT"), portfolio)
	if !v.Approved {
		t.Fatalf("候选无收益率序列时不应被相关性拦截, 得到 %+v", v)
	}
}

func TestVaRLimitRejected(t *testing.T) {
	gate, _ := newTestGate(stubReturns{})
	snap := fresh("BTCUSDT")
	// 日波动 ±10% 的高波动序列, 满仓买入必然超过 5% 上限
	snap.Returns = []float64{0.1, -0.1, 0.1, -0.1, 0.1, -0.1}

	v := gate.Evaluate(buy("BTCUSDT", 100), snap, funded(10000, 10000))
	if v.Approved || v.Reason != ReasonVaR {
		t.Fatalf("期望 var_limit, 得到 %+v", v)
	}
}

func TestMarginLimitRejected(t *testing.T) {
	gate, _ := newTestGate(stubReturns{})
	// 需要 1000*2%=20, 余量 10*(1-10%)=9
	v := gate.Evaluate(buy("BTCUSDT", 2), fresh("BTCUSDT"), funded(1000, 10))
	if v.Approved || v.Reason != ReasonMargin {
		t.Fatalf("期望 margin_limit, 得到 %+v", v)
	}
}

func TestDegradedPortfolioSkipsFundsChecks(t *testing.T) {
	gate, _ := newTestGate(stubReturns{})
	snap := fresh("BTCUSDT")
	// 高波动序列: 若 VaR 检查没被跳过, 这里必然拒绝
	snap.Returns = []float64{0.1, -0.1, 0.1, -0.1, 0.1, -0.1}
	portfolio := venue.Portfolio{Degraded: true, FetchedAt: time.Now()}

	v := gate.Evaluate(buy("BTCUSDT", 100), snap, portfolio)
	if !v.Approved {
		t.Fatalf("signal-only 应放行前三项检查, 得到 %+v", v)
	}
	if !strings.Contains(v.Detail, "signal-only") {
		t.Fatalf("批文应注明 signal-only, 得到 %q", v.Detail)
	}
}

func TestCooldownRejectionDoesNotSelfExtend(t *testing.T) {
	gate, cooldown := newTestGate(stubReturns{})
	d := buy("BTCUSDT", 2)

	v := gate.Evaluate(d, fresh("BTCUSDT"), funded(1000, 10))
	if v.Reason != ReasonMargin {
		t.Fatalf("首次期望 margin_limit, 得到 %+v", v)
	}
	before, active := cooldown.Active(d.Fingerprint(), time.Now())
	if !active {
		t.Fatalf("拒绝后应有冷却记录")
	}

	v = gate.Evaluate(d, fresh("BTCUSDT"), funded(1000, 10))
	if v.Reason != ReasonCooldown {
		t.Fatalf("第二次期望 cooldown_active, 得到 %+v", v)
	}
	after, _ := cooldown.Active(d.Fingerprint(), time.Now())
	if !after.ExpiresAt.Equal(before.ExpiresAt) {
		t.Fatalf("cooldown_active 不得刷新过期时间: %s -> %s", before.ExpiresAt, after.ExpiresAt)
	}
	if after.Reason != ReasonMargin {
		t.Fatalf("冷却记录应保留最初拒绝原因, 得到 %s", after.Reason)
	}
}

func TestApprovedDecisionLeavesNoTrace(t *testing.T) {
	gate, cooldown := newTestGate(stubReturns{})
	v := gate.Evaluate(buy("BTCUSDT", 2), fresh("BTCUSDT"), funded(10000, 10000))
	if !v.Approved {
		t.Fatalf("资金充足的小仓位应放行, 得到 %+v", v)
	}
	if got := cooldown.Snapshot(time.Now()); len(got) != 0 {
		t.Fatalf("放行不得写冷却缓存, 得到 %+v", got)
	}
}
