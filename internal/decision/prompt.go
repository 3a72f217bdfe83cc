package decision

import (
	"fmt"
	"strings"

	"kestrel/internal/pkg/format"
)

// buildSystemPrompt 固定的角色与输出约束。要求模型只输出单个 JSON 对象，
// 便于 ParseModelOutput 稳定解析。
func buildSystemPrompt() string {
	return strings.TrimSpace(`
你是一个谨慎的加密货币合约交易助手。根据给出的市场快照与账户状态，对该交易对给出本周期的操作建议。

只输出一个 JSON 对象，不要输出其他文字：
{"action":"BUY|SELL|HOLD","confidence":0.0~1.0,"size_pct":建议仓位占权益百分比(可选),"stop_loss_pct":止损幅度百分比(可选),"reasoning":"一句话理由"}

约束：
- 没有明确信号时选择 HOLD
- confidence 低于 0.6 时建议 HOLD
- size_pct 不超过 5
`)
}

// buildUserPrompt 汇总快照与账户状态。
func buildUserPrompt(input Input) string {
	s := input.Snapshot
	var b strings.Builder
	fmt.Fprintf(&b, "## 市场快照 %s（周期 %s，采集于 %s）\n", s.Pair, s.Interval, s.CollectedAt.UTC().Format("2006-01-02 15:04:05Z"))
	fmt.Fprintf(&b, "价格: %s，24h 涨跌: %+.2f%%\n", format.Float(s.Price, 4), s.Change24Pct)
	if s.RSI14 > 0 {
		fmt.Fprintf(&b, "RSI14: %.1f，EMA12/26: %s / %s，MACD: %.4f（signal %.4f），ATR14: %s\n",
			s.RSI14, format.Float(s.EMAFast, 4), format.Float(s.EMASlow, 4), s.MACD, s.MACDSignal, format.Float(s.ATR14, 4))
	}
	if s.Sentiment != 0 {
		fmt.Fprintf(&b, "市场情绪: %+.2f（-1 极度恐惧 ~ +1 极度贪婪）\n", s.Sentiment)
	}

	b.WriteString("\n## 账户\n")
	p := input.Portfolio
	if p.Degraded {
		b.WriteString("账户数据本周期不可用（signal-only 模式，仅产出信号不执行）\n")
	} else {
		fmt.Fprintf(&b, "权益: %s %s，可用: %s\n",
			format.Float(p.Balance.Total, 2), p.Balance.Currency, format.Float(p.Balance.Available, 2))
		if len(p.Positions) == 0 {
			b.WriteString("当前无持仓\n")
		}
		for _, pos := range p.Positions {
			fmt.Fprintf(&b, "- %s %s 数量 %s 开仓价 %s 浮动盈亏 %s\n",
				pos.Pair, pos.Side, format.Float(pos.Size, 6), format.Float(pos.EntryPrice, 4), format.Signed(pos.UnrealizedPnL, 2))
		}
	}
	return b.String()
}
