package decision

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 中文说明：
// 决策值对象：由推理协作方产出，经风控审查后交给执行。产出后不可变。

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// ErrUnavailable 推理协作方整体不可用（全部模型失败/超时）。
// 代理循环据此走 REASONING → IDLE 的安全回退。
var ErrUnavailable = errors.New("决策服务不可用")

// NormalizeAction 宽容解析动作：大小写、long/short 同义词都归一到标准值。
// 无法识别返回空串。
func NormalizeAction(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "OPEN_LONG":
		return ActionBuy
	case "SELL", "SHORT", "OPEN_SHORT":
		return ActionSell
	case "HOLD", "WAIT", "NONE":
		return ActionHold
	default:
		return ""
	}
}

// Decision 单个交易对的一次决策。
type Decision struct {
	ID          string    `json:"id"`
	Pair        string    `json:"pair"`
	Action      string    `json:"action"`     // BUY | SELL | HOLD
	Confidence  float64   `json:"confidence"` // [0,1]
	SizePct     float64   `json:"size_pct"`      // 可选：建议仓位（占权益百分比），0 表示未给出
	StopLossPct float64   `json:"stop_loss_pct"` // 可选：止损幅度（百分比），0 表示未给出
	Reasoning   string    `json:"reasoning"`
	Providers   []string  `json:"providers"` // 贡献该决策的模型 ID
	CreatedAt   time.Time `json:"created_at"`
}

// IsHold 观望决策。
func (d Decision) IsHold() bool { return d.Action == ActionHold }

// Fingerprint 冷却缓存用的指纹：交易对 + 动作。
func (d Decision) Fingerprint() string { return d.Pair + "#" + d.Action }

// Validate 基本合法性检查；非法决策不得进入风控与执行。
func (d Decision) Validate() error {
	switch d.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("非法动作: %q", d.Action)
	}
	if d.Action != ActionHold && strings.TrimSpace(d.Pair) == "" {
		return fmt.Errorf("缺少交易对")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("置信度超出 [0,1]: %v", d.Confidence)
	}
	if d.SizePct < 0 || d.SizePct > 100 {
		return fmt.Errorf("仓位百分比超出 [0,100]: %v", d.SizePct)
	}
	if d.StopLossPct < 0 || d.StopLossPct > 100 {
		return fmt.Errorf("止损幅度超出 [0,100]: %v", d.StopLossPct)
	}
	return nil
}
