package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kestrel/internal/event"
	"kestrel/internal/logger"
	"kestrel/internal/pkg/retry"
	"kestrel/internal/pkg/sliceutil"
	"kestrel/internal/venue"
)

// 中文说明：
// 启动恢复：进入第一个感知周期前，把账户实盘状态与配置约束对齐。
// 拉取持仓失败时恰好重试一次，再失败就带着"可能为空"的最优数据继续，
// 不让启动无限阻塞；但平仓动作失败意味着账户仍处于违规状态，必须
// 上报 recovery_failed 并阻止进入交易状态。

type Config struct {
	MaxConcurrentTrades int
	RetryBackoff        time.Duration
	CallTimeout         time.Duration
}

// Report 恢复结果元数据，recovery_complete 事件直接携带。
type Report struct {
	PositionsFound int
	ActionsTaken   int
	Degraded       bool // 持仓拉取彻底失败，按空仓继续
}

type Manager struct {
	cfg    Config
	client venue.Client
	bus    *event.Bus
}

func NewManager(cfg Config, client venue.Client, bus *event.Bus) *Manager {
	if cfg.MaxConcurrentTrades <= 0 {
		cfg.MaxConcurrentTrades = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Manager{cfg: cfg, client: client, bus: bus}
}

// Run 每次进程启动只执行一次。返回错误时调用方不得进入交易状态。
func (m *Manager) Run(ctx context.Context) (Report, error) {
	var report Report

	positions, degraded, err := m.fetchPositions(ctx)
	if err != nil {
		// 只有 ctx 被取消才会走到这里；拉取失败本身会降级继续
		return report, err
	}
	report.PositionsFound = len(positions)
	report.Degraded = degraded

	if len(positions) == 0 {
		// 空仓是合法状态
		logger.Infof("✓ 恢复完成：无持仓")
		m.emitComplete(report)
		return report, nil
	}

	excess := len(positions) - m.cfg.MaxConcurrentTrades
	if excess > 0 {
		logger.Warnf("持仓 %d 笔超过上限 %d，需平掉 %d 笔", len(positions), m.cfg.MaxConcurrentTrades, excess)
		closed, err := m.closeExcess(ctx, positions, excess)
		report.ActionsTaken = closed
		if err != nil {
			m.bus.Emit(event.Event{
				Type:   event.RecoveryFailed,
				Reason: "close_excess_failed",
				Fields: map[string]any{
					"error":           err.Error(),
					"positions_found": report.PositionsFound,
					"actions_taken":   report.ActionsTaken,
				},
			})
			return report, fmt.Errorf("压缩超限持仓失败: %w", err)
		}
	}

	logger.Infof("✓ 恢复完成：持仓 %d 笔，处置 %d 笔", report.PositionsFound, report.ActionsTaken)
	m.emitComplete(report)
	return report, nil
}

// fetchPositions 拉取实盘持仓；按"恰好重试一次"的策略执行，
// 重试耗尽后降级为空仓继续。
func (m *Manager) fetchPositions(ctx context.Context) ([]venue.Position, bool, error) {
	var positions []venue.Position
	err := retry.Once(m.cfg.RetryBackoff).Do(ctx, func(ctx context.Context) error {
		got, callErr := m.callPositions(ctx)
		if callErr != nil {
			logger.Warnf("拉取持仓失败: %v", callErr)
			return callErr
		}
		positions = got
		return nil
	})
	if err == nil {
		return positions, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	logger.Errorf("重试仍失败，按空仓继续（signal-only 风险自担）: %v", err)
	return nil, true, nil
}

func (m *Manager) callPositions(ctx context.Context) ([]venue.Position, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	return m.client.Positions(cctx)
}

// closeExcess 平掉超限持仓。处置顺序固定：浮亏最深优先，其次开仓最早，
// 最后按交易对字典序，保证任意两次运行结果一致。
func (m *Manager) closeExcess(ctx context.Context, positions []venue.Position, excess int) (int, error) {
	ordered := sliceutil.Positions(positions)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.UnrealizedPnL != b.UnrealizedPnL {
			return a.UnrealizedPnL < b.UnrealizedPnL
		}
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.Pair < b.Pair
	})

	closed := 0
	for _, pos := range ordered[:excess] {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		err := m.client.ClosePosition(cctx, pos)
		cancel()
		if err != nil {
			return closed, fmt.Errorf("平仓 %s 失败: %w", pos.Pair, err)
		}
		closed++
		logger.Infof("✓ 恢复平仓 %s %s 浮动盈亏 %.2f", pos.Pair, pos.Side, pos.UnrealizedPnL)
	}
	return closed, nil
}

func (m *Manager) emitComplete(report Report) {
	m.bus.Emit(event.Event{
		Type: event.RecoveryComplete,
		Fields: map[string]any{
			"positions_found": report.PositionsFound,
			"actions_taken":   report.ActionsTaken,
			"degraded":        report.Degraded,
		},
	})
}
