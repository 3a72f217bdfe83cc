package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kestrel/internal/event"
	"kestrel/internal/logger"
)

// EventNotifier 把生命周期事件转成 Telegram 推送。Publish 只入队不发网络
// 请求，发送由 Run 里的工作循环完成；队列满时丢弃并记日志，绝不反压
// 交易循环。

type EventNotifier struct {
	tg    *Telegram
	queue chan event.Event
}

func NewEventNotifier(tg *Telegram) *EventNotifier {
	return &EventNotifier{tg: tg, queue: make(chan event.Event, 64)}
}

// Publish 实现 event.Sink。
func (n *EventNotifier) Publish(evt event.Event) {
	if n == nil || !n.tg.Enabled() {
		return
	}
	select {
	case n.queue <- evt:
	default:
		logger.Warnf("通知队列已满，丢弃事件 %s", evt.Type)
	}
}

// Run 消费队列直到 ctx 取消。由应用的 errgroup 托管。
func (n *EventNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-n.queue:
			msg, ok := renderEvent(evt)
			if !ok {
				continue
			}
			if err := n.tg.SendText(msg); err != nil {
				logger.Warnf("Telegram 推送失败: %v", err)
			}
		}
	}
}

// renderEvent 只推送运维关心的事件；新鲜度失败这类高频噪声只进日志。
func renderEvent(evt event.Event) (string, bool) {
	switch evt.Type {
	case event.RecoveryComplete:
		return fmt.Sprintf("*Kestrel 启动恢复完成* ✅\n```\npositions : %v\nactions   : %v\n```",
			field(evt, "positions_found"), field(evt, "actions_taken")), true
	case event.RecoveryFailed:
		return fmt.Sprintf("*启动恢复失败* 🛑\n原因: %s\n```\n%v\n```\n进程已拒绝进入交易状态，请人工介入。",
			evt.Reason, field(evt, "error")), true
	case event.TradeExecuted:
		var b strings.Builder
		b.WriteString("📈 成交通知\n```\n")
		fmt.Fprintf(&b, "pair     : %s\n", evt.Pair)
		fmt.Fprintf(&b, "trade_id : %v\n", field(evt, "trade_id"))
		fmt.Fprintf(&b, "qty      : %v\n", field(evt, "quantity"))
		fmt.Fprintf(&b, "avg      : %v\n", field(evt, "avg_price"))
		fmt.Fprintf(&b, "notional : %v\n", field(evt, "notional"))
		fmt.Fprintf(&b, "time     : %s\n", eventTime(evt).Format(time.RFC3339))
		b.WriteString("```")
		return b.String(), true
	case event.TradeFailed:
		return fmt.Sprintf("⚠️ 执行失败\n```\npair  : %s\nerror : %v\n```\n资金预留已回滚。",
			evt.Pair, field(evt, "error")), true
	case event.RiskRejected:
		return fmt.Sprintf("🚧 风控拒绝 %s\n原因: `%s`\n%v", evt.Pair, evt.Reason, field(evt, "detail")), true
	}
	return "", false
}

func field(evt event.Event, key string) any {
	v, ok := evt.Field(key)
	if !ok || v == nil {
		return "-"
	}
	return v
}

func eventTime(evt event.Event) time.Time {
	if evt.At.IsZero() {
		return time.Now()
	}
	return evt.At
}
