package event

import "time"

// 中文说明：
// 生命周期事件：周期的每个终态都可观测，事件名是对外契约的一部分，
// 下游（日志/Telegram/落库/指标）不需要重新推导上下文。

type Type string

const (
	RecoveryComplete    Type = "recovery_complete"
	RecoveryFailed      Type = "recovery_failed"
	DataFreshnessFailed Type = "data_freshness_failed"
	RiskRejected        Type = "risk_rejected"
	TradeExecuted       Type = "trade_executed"
	TradeFailed         Type = "trade_failed"
)

// Event 单条生命周期事件。Fields 放事件特有的元数据
// （positions_found、actions_taken、trade_id、error 等）。
type Event struct {
	Type       Type           `json:"type"`
	Pair       string         `json:"pair,omitempty"`
	DecisionID string         `json:"decision_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	At         time.Time      `json:"at"`
}

// Field 读取元数据，便于 sink 做类型断言前的判空。
func (e Event) Field(key string) (any, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[key]
	return v, ok
}
