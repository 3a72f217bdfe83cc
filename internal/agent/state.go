package agent

import (
	"errors"
	"fmt"
)

// 中文说明：
// 代理状态机。状态集与迁移表都是封闭的：合法迁移全部枚举在 transition
// 里，表外的 (状态, 信号) 组合一律返回 ErrIllegalTransition。这类错误
// 意味着循环代码有 bug，调用方必须大声失败，不许静默纠正。

// State 代理所处的阶段。
type State int

const (
	StateIdle State = iota
	StateRecovering
	StatePerception
	StateReasoning
	StateRiskCheck
	StateExecution
	StateLearning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecovering:
		return "RECOVERING"
	case StatePerception:
		return "PERCEPTION"
	case StateReasoning:
		return "REASONING"
	case StateRiskCheck:
		return "RISK_CHECK"
	case StateExecution:
		return "EXECUTION"
	case StateLearning:
		return "LEARNING"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// signal 驱动状态迁移的内部信号。
type signal int

const (
	sigTick          signal = iota // 定时器/手动触发，开始新周期
	sigRecovered                   // 启动恢复完成
	sigSnapshotFresh               // 行情新鲜，可以推理
	sigSnapshotStale               // 行情过期或拉取失败，放弃本周期
	sigDecisionReady               // 产出决策（含 HOLD）
	sigNoDecision                  // 决策服务不可用
	sigApproved                    // 风控放行
	sigNotTrading                  // 风控拒绝 / HOLD / signal-only
	sigExecuted                    // 执行阶段结束（成交或失败）
	sigCycleDone                   // 周期留痕完成
)

func (s signal) String() string {
	switch s {
	case sigTick:
		return "tick"
	case sigRecovered:
		return "recovered"
	case sigSnapshotFresh:
		return "snapshot_fresh"
	case sigSnapshotStale:
		return "snapshot_stale"
	case sigDecisionReady:
		return "decision_ready"
	case sigNoDecision:
		return "no_decision"
	case sigApproved:
		return "approved"
	case sigNotTrading:
		return "not_trading"
	case sigExecuted:
		return "executed"
	case sigCycleDone:
		return "cycle_done"
	}
	return fmt.Sprintf("signal(%d)", int(s))
}

// ErrIllegalTransition 表外迁移，属于编程错误。
var ErrIllegalTransition = errors.New("非法状态迁移")

// transition 唯一的状态迁移函数。只认表内组合，其余一律拒绝。
func transition(from State, sig signal) (State, error) {
	switch from {
	case StateIdle:
		if sig == sigTick {
			return StatePerception, nil
		}
	case StateRecovering:
		if sig == sigRecovered {
			return StatePerception, nil
		}
	case StatePerception:
		switch sig {
		case sigSnapshotFresh:
			return StateReasoning, nil
		case sigSnapshotStale:
			return StateIdle, nil
		}
	case StateReasoning:
		switch sig {
		case sigDecisionReady:
			return StateRiskCheck, nil
		case sigNoDecision:
			return StateIdle, nil
		}
	case StateRiskCheck:
		switch sig {
		case sigApproved:
			return StateExecution, nil
		case sigNotTrading:
			return StateLearning, nil
		}
	case StateExecution:
		if sig == sigExecuted {
			return StateLearning, nil
		}
	case StateLearning:
		if sig == sigCycleDone {
			return StateIdle, nil
		}
	}
	return from, fmt.Errorf("%w: %s + %s", ErrIllegalTransition, from, sig)
}
