package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kestrel/internal/decision"
	"kestrel/internal/event"
	"kestrel/internal/execution"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/pkg/text"
	"kestrel/internal/risk"
	"kestrel/internal/venue"
)

// 周期结局，留痕与指标共用。
const (
	OutcomeFilled     = "filled"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
	OutcomeHold       = "hold"
	OutcomeSignalOnly = "signal_only"
	OutcomeStale      = "stale"
	OutcomeNoDecision = "no_decision"
)

// CycleRecord 单个周期的留痕，LEARNING 阶段写入存储。
type CycleRecord struct {
	CycleID      string
	Pair         string
	Outcome      string
	DecisionID   string
	Action       string
	Confidence   float64
	RejectReason string
	TradeID      string
	Failure      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// cycleContext 周期内各阶段共享的可变上下文，周期结束即丢弃。
// 显式传递而不是散落在 Agent 字段上，保证两个周期之间不串数据。
type cycleContext struct {
	id        string
	pair      string
	startedAt time.Time

	portfolio venue.Portfolio
	snapshot  market.Snapshot
	decision  decision.Decision
	verdict   risk.Verdict
	result    *execution.Result

	outcome string
	failure string
}

// runStagesLocked 从 PERCEPTION 开始走完一个周期。调用方必须持有
// cycleMu 且已把状态推进到 PERCEPTION。
func (a *Agent) runStagesLocked(ctx context.Context) error {
	cyc := &cycleContext{
		id:        uuid.NewString(),
		pair:      a.pickPair(),
		startedAt: time.Now(),
	}
	logger.Infof("周期 %s 开始 pair=%s state=%s", shortID(cyc.id), cyc.pair, a.State())

	// —— 感知 ——
	if !a.perceive(ctx, cyc) {
		if err := a.advance(sigSnapshotStale); err != nil {
			return err
		}
		a.conclude(ctx, cyc)
		return nil
	}
	if err := a.advance(sigSnapshotFresh); err != nil {
		return err
	}

	// —— 推理 ——
	if !a.reason(ctx, cyc) {
		if err := a.advance(sigNoDecision); err != nil {
			return err
		}
		a.conclude(ctx, cyc)
		return nil
	}
	if err := a.advance(sigDecisionReady); err != nil {
		return err
	}

	// —— 风控 ——
	if a.riskCheck(cyc) {
		if err := a.advance(sigApproved); err != nil {
			return err
		}
		// —— 执行 ——
		a.execute(ctx, cyc)
		if err := a.advance(sigExecuted); err != nil {
			return err
		}
	} else {
		if err := a.advance(sigNotTrading); err != nil {
			return err
		}
	}

	// —— 学习 ——
	a.conclude(ctx, cyc)
	return a.advance(sigCycleDone)
}

// perceive 采集账户视图与行情快照。账户失败降级为 signal-only；
// 行情拉取失败或过期返回 false，本周期到此为止。
func (a *Agent) perceive(ctx context.Context, cyc *cycleContext) bool {
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	portfolio, err := venue.FetchPortfolio(cctx, a.deps.Client)
	cancel()
	if err != nil {
		logger.Warnf("账户视图不可用，本周期 signal-only: %v", err)
	}
	cyc.portfolio = portfolio

	// 行情拉取同样必须有界：连接挂死不得把状态机钉在 PERCEPTION
	sctx, scancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	snap, err := a.deps.Snapshots.FetchSnapshot(sctx, cyc.pair)
	scancel()
	if err != nil {
		cyc.outcome = OutcomeStale
		cyc.failure = err.Error()
		logger.Warnf("行情拉取失败，放弃本周期: pair=%s err=%v", cyc.pair, err)
		a.deps.Bus.Emit(event.Event{
			Type:   event.DataFreshnessFailed,
			Pair:   cyc.pair,
			Reason: "fetch_failed",
			Fields: map[string]any{"error": err.Error()},
		})
		return false
	}
	cyc.snapshot = snap

	now := time.Now()
	if snap.Stale(a.cfg.SnapshotMaxAge, now) {
		age := snap.Age(now).Truncate(time.Second)
		cyc.outcome = OutcomeStale
		cyc.failure = fmt.Sprintf("快照过期 age=%s", age)
		logger.Warnf("行情过期：pair=%s 采集于 %s 前，上限 %s，放弃本周期", cyc.pair, age, a.cfg.SnapshotMaxAge)
		a.deps.Bus.Emit(event.Event{
			Type:   event.DataFreshnessFailed,
			Pair:   cyc.pair,
			Reason: "stale_snapshot",
			Fields: map[string]any{
				"age_seconds":     int64(age.Seconds()),
				"max_age_seconds": int64(a.cfg.SnapshotMaxAge.Seconds()),
			},
		})
		return false
	}
	return true
}

// reason 调用决策服务。不可用时观望，本周期不产生任何副作用。
func (a *Agent) reason(ctx context.Context, cyc *cycleContext) bool {
	d, err := a.deps.Decider.Propose(ctx, decision.Input{
		Snapshot:  cyc.snapshot,
		Portfolio: cyc.portfolio,
	})
	if err != nil {
		cyc.outcome = OutcomeNoDecision
		cyc.failure = err.Error()
		logger.Warnf("决策服务不可用，本周期观望: %v", err)
		return false
	}
	cyc.decision = d
	logger.Infof("AI 决策: %s %s conf=%.2f size=%.1f%% 理由=%s",
		d.Pair, d.Action, d.Confidence, d.SizePct, text.Truncate(text.FirstLine(d.Reasoning), 120))
	if a.deps.Decisions != nil {
		if err := a.deps.Decisions.SaveDecision(ctx, d); err != nil {
			logger.Warnf("决策留痕失败: %v", err)
		}
	}
	return true
}

// riskCheck 返回 true 表示放行进入执行。拒绝、HOLD、signal-only 都
// 走 LEARNING 收尾。
func (a *Agent) riskCheck(cyc *cycleContext) bool {
	verdict := a.deps.Gate.Evaluate(cyc.decision, cyc.snapshot, cyc.portfolio)
	cyc.verdict = verdict

	if !verdict.Approved {
		cyc.outcome = OutcomeRejected
		logger.Infof("风控拒绝: pair=%s reason=%s detail=%s", cyc.decision.Pair, verdict.Reason, verdict.Detail)
		a.deps.Bus.Emit(event.Event{
			Type:       event.RiskRejected,
			Pair:       cyc.decision.Pair,
			DecisionID: cyc.decision.ID,
			Reason:     verdict.Reason,
			Fields:     map[string]any{"detail": verdict.Detail},
		})
		return false
	}
	if cyc.decision.IsHold() {
		cyc.outcome = OutcomeHold
		logger.Infof("决策观望: pair=%s", cyc.pair)
		return false
	}
	if cyc.portfolio.Degraded {
		// 账户视图不可信：信号已产出但绝不下单
		cyc.outcome = OutcomeSignalOnly
		logger.Warnf("signal-only：%s %s 信号已产出但不执行", cyc.decision.Pair, cyc.decision.Action)
		return false
	}
	return true
}

// execute 委托执行阶段完成预留-下单-落账协议；事件由执行阶段发出。
func (a *Agent) execute(ctx context.Context, cyc *cycleContext) {
	res := a.deps.Stage.Execute(ctx, cyc.decision, cyc.snapshot, cyc.portfolio)
	cyc.result = &res
	if res.Status == execution.ResultFilled {
		cyc.outcome = OutcomeFilled
		return
	}
	cyc.outcome = OutcomeFailed
	if res.Err != nil {
		cyc.failure = res.Err.Error()
	}
}

// conclude 周期收尾：指标观测 + 留痕 + 日志，每个周期恰好一次。
func (a *Agent) conclude(ctx context.Context, cyc *cycleContext) {
	elapsed := time.Since(cyc.startedAt)
	if a.deps.Observer != nil {
		a.deps.Observer.ObserveCycle(cyc.outcome, elapsed)
	}
	if a.deps.Outcomes != nil {
		rec := CycleRecord{
			CycleID:      cyc.id,
			Pair:         cyc.pair,
			Outcome:      cyc.outcome,
			DecisionID:   cyc.decision.ID,
			Action:       cyc.decision.Action,
			Confidence:   cyc.decision.Confidence,
			RejectReason: cyc.verdict.Reason,
			Failure:      cyc.failure,
			StartedAt:    cyc.startedAt,
			FinishedAt:   time.Now(),
		}
		if cyc.result != nil {
			rec.TradeID = cyc.result.TradeID
		}
		if err := a.deps.Outcomes.RecordCycle(ctx, rec); err != nil {
			logger.Warnf("周期留痕失败: %v", err)
		}
	}
	logger.Infof("✓ 周期 %s 结束 outcome=%s 耗时=%s", shortID(cyc.id), cyc.outcome, elapsed.Truncate(time.Millisecond))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
