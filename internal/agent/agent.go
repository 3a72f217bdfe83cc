package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kestrel/internal/decision"
	"kestrel/internal/event"
	"kestrel/internal/execution"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/pkg/sliceutil"
	"kestrel/internal/recovery"
	"kestrel/internal/risk"
	"kestrel/internal/venue"
)

// 中文说明：
// 自治交易代理的单循环：恢复 -> (感知 -> 推理 -> 风控 -> 执行 -> 学习)*。
// 同一时刻只允许一个周期在跑，周期内共享状态由互斥锁保护；对外能力
// 全部经由窄端口进入，依赖方向只进不出。

// SnapshotProvider 感知阶段的行情端口。
type SnapshotProvider interface {
	FetchSnapshot(ctx context.Context, pair string) (market.Snapshot, error)
}

// RiskEvaluator 风控阶段端口。
type RiskEvaluator interface {
	Evaluate(d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) risk.Verdict
}

// Executor 执行阶段端口。
type Executor interface {
	Execute(ctx context.Context, d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) execution.Result
}

// Recoverer 启动恢复端口。
type Recoverer interface {
	Run(ctx context.Context) (recovery.Report, error)
}

// OutcomeRecorder 周期留痕端口，LEARNING 阶段写入。
type OutcomeRecorder interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
}

// DecisionRecorder 决策留痕端口，推理成功后写入。
type DecisionRecorder interface {
	SaveDecision(ctx context.Context, d decision.Decision) error
}

// CycleObserver 周期观测端口，指标实现。
type CycleObserver interface {
	ObserveCycle(outcome string, elapsed time.Duration)
}

// Config 循环参数。零值字段在 New 里补默认。
type Config struct {
	CycleInterval  time.Duration // 周期间隔，默认 60s
	SnapshotMaxAge time.Duration // 行情新鲜度上限，默认 15m
	CallTimeout    time.Duration // 单次外部调用（账户/行情）超时，默认 10s
}

// Deps 代理的能力端口集合。
type Deps struct {
	Client    venue.Client
	Snapshots SnapshotProvider
	Decider   decision.Provider
	Gate      RiskEvaluator
	Stage     Executor
	Recovery  Recoverer
	Bus       *event.Bus
	Outcomes  OutcomeRecorder  // 可为 nil
	Decisions DecisionRecorder // 可为 nil
	Observer  CycleObserver    // 可为 nil
}

type Agent struct {
	cfg   Config
	pairs []string
	deps  Deps

	cycleMu  sync.Mutex // 串行化周期：任意时刻至多一个周期在执行
	stateMu  sync.Mutex // 保护 state，供运维接口并发读取
	state    State
	nextPair int

	trigger chan struct{}
}

func New(cfg Config, pairs []string, deps Deps) *Agent {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 60 * time.Second
	}
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = 15 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Agent{
		cfg:     cfg,
		pairs:   pairs,
		deps:    deps,
		state:   StateRecovering,
		trigger: make(chan struct{}, 1),
	}
}

// State 当前状态，运维接口用。
func (a *Agent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// Pairs 候选交易对列表的副本。
func (a *Agent) Pairs() []string {
	return sliceutil.Strings(a.pairs)
}

// Trigger 请求尽快执行一个周期。已有周期在排队或执行时丢弃本次请求，
// 返回 false；绝不阻塞调用方。
func (a *Agent) Trigger() bool {
	select {
	case a.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run 先执行一次启动恢复，成功后立即跑首个周期，之后按固定间隔驱动，
// 直到 ctx 取消。恢复失败或状态机不变量被破坏时返回错误，调用方应当
// 终止进程而不是重试。
func (a *Agent) Run(ctx context.Context) error {
	if err := a.recoverOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(a.cfg.CycleInterval)
	defer ticker.Stop()
	fmt.Printf("Kestrel 启动完成。恢复已通过，每 %s 执行一次感知周期。按 Ctrl+C 退出。\n", a.cfg.CycleInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.RunCycle(ctx); err != nil {
				return err
			}
		case <-a.trigger:
			if err := a.RunCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// recoverOnce 每次进程启动只执行一次。恢复失败时代理不得进入交易循环。
func (a *Agent) recoverOnce(ctx context.Context) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if a.State() != StateRecovering {
		return fmt.Errorf("恢复只能从 RECOVERING 进入，当前 %s", a.State())
	}
	report, err := a.deps.Recovery.Run(ctx)
	if err != nil {
		return fmt.Errorf("启动恢复失败，拒绝交易: %w", err)
	}
	if report.Degraded {
		logger.Warnf("恢复以降级方式完成，持仓视图可能不完整")
	}
	if err := a.advance(sigRecovered); err != nil {
		return err
	}
	// 恢复完成直接进入首个感知周期
	return a.runStagesLocked(ctx)
}

// RunCycle 执行一个完整周期。互斥锁保证同一时刻只有一个周期；返回的
// 错误只可能是状态机不变量被破坏，属于致命错误。
func (a *Agent) RunCycle(ctx context.Context) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if err := a.advance(sigTick); err != nil {
		return err
	}
	return a.runStagesLocked(ctx)
}

// advance 按迁移表推进状态；表外组合大声失败。
func (a *Agent) advance(sig signal) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	next, err := transition(a.state, sig)
	if err != nil {
		logger.Errorf("状态机不变量被破坏: %v", err)
		return err
	}
	logger.Debugf("状态迁移 %s -> %s (%s)", a.state, next, sig)
	a.state = next
	return nil
}

// pickPair 轮转选择本周期的交易对。
func (a *Agent) pickPair() string {
	if len(a.pairs) == 0 {
		return ""
	}
	p := a.pairs[a.nextPair%len(a.pairs)]
	a.nextPair++
	return p
}
