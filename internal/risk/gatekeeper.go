package risk

import (
	"fmt"
	"math"
	"time"

	"kestrel/internal/decision"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/venue"
)

// 中文说明：
// 风控闸门：按固定顺序审查决策，第一个不过的检查即短路拒绝。
// 拒绝时写入冷却缓存（cooldown_active 本身除外，避免自我续期）；
// 批准不留任何记录。

// 拒绝原因是对外契约，事件与落库都直接使用。
const (
	ReasonCooldown    = "cooldown_active"
	ReasonStaleData   = "stale_data"
	ReasonCorrelation = "correlation_limit"
	ReasonVaR         = "var_limit"
	ReasonMargin      = "margin_limit"
)

// Verdict 审查结论。Detail 是给人看的触发数值，Reason 给机器。
type Verdict struct {
	Approved bool
	Reason   string
	Detail   string
}

// ReturnsSource 收益率序列来源（market.Provider 实现），相关性与 VaR 用。
type ReturnsSource interface {
	ReturnsFor(pair string) []float64
}

type Config struct {
	CorrelationThreshold float64
	MaxCorrelatedAssets  int
	VaRConfidence        float64
	MaxVaRPct            float64
	MarginBufferPct      float64
	SnapshotMaxAge       time.Duration
	DefaultSizePct       float64
}

type Gatekeeper struct {
	cfg      Config
	cooldown *CooldownCache
	returns  ReturnsSource
}

func NewGatekeeper(cfg Config, cooldown *CooldownCache, returns ReturnsSource) *Gatekeeper {
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = 15 * time.Minute
	}
	if cfg.DefaultSizePct <= 0 {
		cfg.DefaultSizePct = 2.0
	}
	return &Gatekeeper{cfg: cfg, cooldown: cooldown, returns: returns}
}

// Cooldown 暴露冷却缓存，供查询接口与定期清理使用。
func (g *Gatekeeper) Cooldown() *CooldownCache { return g.cooldown }

// Evaluate 审查一个决策。HOLD 直接放行（无需动用资金）。
// 组合数据缺失（signal-only）时跳过依赖权益的检查 4/5，由执行阶段落为无操作。
func (g *Gatekeeper) Evaluate(d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) Verdict {
	if d.IsHold() {
		return Verdict{Approved: true, Detail: "观望决策无需审查"}
	}
	now := time.Now()

	// 1. 冷却期
	if rec, active := g.cooldown.Active(d.Fingerprint(), now); active {
		return Verdict{
			Approved: false,
			Reason:   ReasonCooldown,
			Detail:   fmt.Sprintf("指纹 %s 冷却至 %s（上次原因 %s）", rec.Fingerprint, rec.ExpiresAt.Format("15:04:05"), rec.Reason),
		}
	}

	// 2. 数据新鲜度（感知阶段已查过，这里防御性复查）
	if snap.Stale(g.cfg.SnapshotMaxAge, now) {
		return g.reject(d, now, ReasonStaleData,
			fmt.Sprintf("快照年龄 %s 超过阈值 %s", snap.Age(now).Truncate(time.Second), g.cfg.SnapshotMaxAge))
	}

	// 3. 相关性敞口
	if v, bad := g.checkCorrelation(d, snap, portfolio); bad {
		return g.reject(d, now, ReasonCorrelation, v)
	}

	if portfolio.Degraded {
		logger.Warnf("账户数据缺失，跳过 VaR/保证金检查: %s", d.Pair)
		return Verdict{Approved: true, Detail: "signal-only：跳过资金类检查"}
	}

	// 4. VaR
	if v, bad := g.checkVaR(d, snap, portfolio); bad {
		return g.reject(d, now, ReasonVaR, v)
	}

	// 5. 保证金余量
	if v, bad := g.checkMargin(d, portfolio); bad {
		return g.reject(d, now, ReasonMargin, v)
	}

	return Verdict{Approved: true}
}

// reject 统一出口：写冷却缓存并组装结论。
func (g *Gatekeeper) reject(d decision.Decision, now time.Time, reason, detail string) Verdict {
	g.cooldown.Put(d.Fingerprint(), reason, now)
	return Verdict{Approved: false, Reason: reason, Detail: detail}
}

func (g *Gatekeeper) checkCorrelation(d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) (string, bool) {
	candidate := snap.Returns
	if len(candidate) == 0 && g.returns != nil {
		candidate = g.returns.ReturnsFor(d.Pair)
	}
	if len(candidate) < 3 {
		return "", false // 无数据时不拦截，VaR/保证金仍会兜底
	}
	correlated := 0
	for _, pos := range portfolio.Positions {
		var series []float64
		if g.returns != nil {
			series = g.returns.ReturnsFor(pos.Pair)
		}
		if len(series) < 3 {
			logger.Debugf("缺少 %s 收益率序列，相关性检查跳过该持仓", pos.Pair)
			continue
		}
		if math.Abs(pearson(candidate, series)) >= g.cfg.CorrelationThreshold {
			correlated++
		}
	}
	if correlated >= g.cfg.MaxCorrelatedAssets {
		return fmt.Sprintf("相关持仓已达 %d（上限 %d，阈值 %.2f）",
			correlated, g.cfg.MaxCorrelatedAssets, g.cfg.CorrelationThreshold), true
	}
	return "", false
}

func (g *Gatekeeper) checkVaR(d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) (string, bool) {
	equity := portfolio.Equity()
	if equity <= 0 {
		return "", false
	}
	weights := make([]weightedPosition, 0, len(portfolio.Positions)+1)
	for _, pos := range portfolio.Positions {
		notional := pos.Size * pos.MarkPrice
		if notional <= 0 {
			notional = pos.Size * pos.EntryPrice
		}
		var series []float64
		if g.returns != nil {
			series = g.returns.ReturnsFor(pos.Pair)
		}
		weights = append(weights, weightedPosition{
			weight:  notional / equity,
			returns: series,
		})
	}
	weights = append(weights, weightedPosition{
		weight:  g.candidateNotional(d, equity) / equity,
		returns: snap.Returns,
	})
	varPct := portfolioVaRPct(weights, g.cfg.VaRConfidence)
	if varPct > g.cfg.MaxVaRPct {
		return fmt.Sprintf("组合 VaR %.2f%% 超过上限 %.2f%%（置信度 %.2f）",
			varPct, g.cfg.MaxVaRPct, g.cfg.VaRConfidence), true
	}
	return "", false
}

func (g *Gatekeeper) checkMargin(d decision.Decision, portfolio venue.Portfolio) (string, bool) {
	required := g.candidateNotional(d, portfolio.Equity())
	headroom := portfolio.FreeMargin() * (1 - g.cfg.MarginBufferPct/100)
	if required > headroom {
		return fmt.Sprintf("所需保证金 %.2f 超过可用余量 %.2f（安全垫 %.0f%%）",
			required, headroom, g.cfg.MarginBufferPct), true
	}
	return "", false
}

// candidateNotional 候选仓位的名义价值：决策给了 size_pct 用决策的，否则用缺省。
func (g *Gatekeeper) candidateNotional(d decision.Decision, equity float64) float64 {
	pct := d.SizePct
	if pct <= 0 {
		pct = g.cfg.DefaultSizePct
	}
	return equity * pct / 100
}
