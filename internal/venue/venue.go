package venue

import (
	"context"
	"fmt"
	"time"
)

// 中文说明：
// 交易所能力端口。代理循环只依赖这里的窄接口，不感知具体交易所；
// 具体实现见 gateway/binance。

const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Position 交易所侧持仓的只读镜像，风控与恢复阶段使用。
type Position struct {
	Pair          string
	Side          string // LONG | SHORT
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      float64
	EntryTime     time.Time
}

// Balance 账户资金快照。
type Balance struct {
	Total     float64
	Available float64
	Used      float64
	Currency  string
	UpdatedAt time.Time
}

// OrderRequest 提交到交易所的下单请求。ClientID 用决策 ID 填充，便于对账。
type OrderRequest struct {
	Pair     string
	Side     string // BUY | SELL
	Quantity float64
	// 可选止损价，>0 时随订单一并挂出
	StopPrice float64
	ClientID  string
}

// OrderResult 下单回执。
type OrderResult struct {
	TradeID   string
	FilledQty float64
	AvgPrice  float64
	Filled    bool
}

// Portfolio 代理每个周期组装的账户视图：资金 + 持仓镜像。
// Degraded 表示本周期资金/持仓拉取失败，进入 signal-only 模式（只产出决策不执行）。
type Portfolio struct {
	Balance   Balance
	Positions []Position
	FetchedAt time.Time
	Degraded  bool
}

// Equity 账户权益；degraded 时为 0。
func (p Portfolio) Equity() float64 { return p.Balance.Total }

// FreeMargin 可用保证金。
func (p Portfolio) FreeMargin() float64 { return p.Balance.Available }

// HasPosition 判断 pair 是否已有持仓。
func (p Portfolio) HasPosition(pair string) bool {
	for _, pos := range p.Positions {
		if pos.Pair == pair {
			return true
		}
	}
	return false
}

// FetchPortfolio 聚合余额与持仓为一份账户视图。部分调用失败不中断周期：
// 拿到多少算多少，Degraded 置位，首个错误返回给调用方记日志。
func FetchPortfolio(ctx context.Context, c Client) (Portfolio, error) {
	p := Portfolio{FetchedAt: time.Now()}
	var firstErr error

	bal, err := c.Balance(ctx)
	if err != nil {
		p.Degraded = true
		firstErr = fmt.Errorf("拉取余额: %w", err)
	} else {
		p.Balance = bal
	}

	positions, err := c.Positions(ctx)
	if err != nil {
		p.Degraded = true
		if firstErr == nil {
			firstErr = fmt.Errorf("拉取持仓: %w", err)
		}
	} else {
		p.Positions = positions
	}
	return p, firstErr
}

// Client 交易所交易能力。所有调用都应带超时的 ctx。
type Client interface {
	// Positions 返回当前全部非零持仓；空仓返回空切片，不是错误。
	Positions(ctx context.Context) ([]Position, error)
	// Balance 返回账户资金快照。
	Balance(ctx context.Context) (Balance, error)
	// SubmitOrder 提交市价单，阻塞到成交或失败。
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// ClosePosition 按市价平掉指定持仓（恢复阶段压缩持仓用）。
	ClosePosition(ctx context.Context, pos Position) error
	// Name 实现方标识，事件与日志使用。
	Name() string
}
