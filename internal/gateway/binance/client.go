package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"kestrel/internal/logger"
	"kestrel/internal/venue"
)

// 中文说明：
// 币安 USDT 本位合约的 venue.Client 实现。全部走官方 SDK，数值字段
// 都是字符串，这里统一换算成 float64；上层只看语义，不碰交易所细节。

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

type Venue struct {
	api *futures.Client
}

func NewVenue(cfg Config) *Venue {
	futures.UseTestnet = cfg.Testnet
	return &Venue{api: futures.NewClient(cfg.APIKey, cfg.APISecret)}
}

func (v *Venue) Name() string { return "binance" }

// Positions 返回全部非零持仓。单向持仓模式下方向由数量符号决定。
func (v *Venue) Positions(ctx context.Context) ([]venue.Position, error) {
	risks, err := v.api.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 持仓查询: %w", err)
	}
	out := make([]venue.Position, 0, len(risks))
	for _, r := range risks {
		amt := parseF(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := venue.SideLong
		if amt < 0 {
			side = venue.SideShort
		}
		pos := venue.Position{
			Pair:          strings.ToUpper(r.Symbol),
			Side:          side,
			Size:          math.Abs(amt),
			EntryPrice:    parseF(r.EntryPrice),
			MarkPrice:     parseF(r.MarkPrice),
			UnrealizedPnL: parseF(r.UnRealizedProfit),
			Leverage:      parseF(r.Leverage),
		}
		if r.UpdateTime > 0 {
			pos.EntryTime = time.UnixMilli(r.UpdateTime)
		}
		out = append(out, pos)
	}
	return out, nil
}

// Balance 返回保证金口径的账户资金：Total 含未实现盈亏。
func (v *Venue) Balance(ctx context.Context) (venue.Balance, error) {
	acct, err := v.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return venue.Balance{}, fmt.Errorf("binance 余额查询: %w", err)
	}
	total := parseF(acct.TotalMarginBalance)
	available := parseF(acct.AvailableBalance)
	return venue.Balance{
		Total:     total,
		Available: available,
		Used:      total - available,
		Currency:  "USDT",
		UpdatedAt: time.Now(),
	}, nil
}

// SubmitOrder 提交市价单。回执未终结时再查一次订单状态，之后不再等待；
// 未成交由调用方按失败处理并回滚预留。
func (v *Venue) SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var result venue.OrderResult
	side := futures.SideTypeBuy
	if strings.EqualFold(req.Side, "SELL") {
		side = futures.SideTypeSell
	}

	svc := v.api.NewCreateOrderService().
		Symbol(req.Pair).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(req.Quantity)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if id := clientOrderID(req.ClientID); id != "" {
		svc = svc.NewClientOrderID(id)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return result, fmt.Errorf("binance 下单: %w", err)
	}

	status := resp.Status
	executed := parseF(resp.ExecutedQuantity)
	avg := parseF(resp.AvgPrice)
	if status != futures.OrderStatusTypeFilled {
		// 市价单极少悬挂；补查一次后无论结果都返回
		status, executed, avg = v.checkOrder(ctx, req.Pair, resp.OrderID, status, executed, avg)
	}

	result.TradeID = strconv.FormatInt(resp.OrderID, 10)
	result.FilledQty = executed
	result.AvgPrice = avg
	result.Filled = status == futures.OrderStatusTypeFilled
	if result.Filled && req.StopPrice > 0 {
		v.placeStop(ctx, req, side)
	}
	return result, nil
}

func (v *Venue) checkOrder(ctx context.Context, pair string, orderID int64, status futures.OrderStatusType, executed, avg float64) (futures.OrderStatusType, float64, float64) {
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return status, executed, avg
	}
	order, err := v.api.NewGetOrderService().Symbol(pair).OrderID(orderID).Do(ctx)
	if err != nil {
		logger.Warnf("补查订单 %d 失败: %v", orderID, err)
		return status, executed, avg
	}
	return order.Status, parseF(order.ExecutedQuantity), parseF(order.AvgPrice)
}

// placeStop 成交后挂保护性止损（STOP_MARKET 全平）。挂失败不回滚交易，
// 但必须大声记录：仓位此刻没有止损保护。
func (v *Venue) placeStop(ctx context.Context, req venue.OrderRequest, entrySide futures.SideType) {
	stopSide := futures.SideTypeSell
	if entrySide == futures.SideTypeSell {
		stopSide = futures.SideTypeBuy
	}
	_, err := v.api.NewCreateOrderService().
		Symbol(req.Pair).
		Side(stopSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatPrice(req.StopPrice)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		logger.Errorf("止损单挂出失败，%s 仓位当前无保护: %v", req.Pair, err)
		return
	}
	logger.Infof("✓ 止损已挂 %s stop=%s", req.Pair, formatPrice(req.StopPrice))
}

// ClosePosition 市价全平指定持仓，先撤掉该交易对的全部挂单。
func (v *Venue) ClosePosition(ctx context.Context, pos venue.Position) error {
	if err := v.api.NewCancelAllOpenOrdersService().Symbol(pos.Pair).Do(ctx); err != nil {
		logger.Warnf("撤销 %s 挂单失败: %v", pos.Pair, err)
	}
	side := futures.SideTypeSell
	if pos.Side == venue.SideShort {
		side = futures.SideTypeBuy
	}
	_, err := v.api.NewCreateOrderService().
		Symbol(pos.Pair).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(pos.Size)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance 平仓 %s: %w", pos.Pair, err)
	}
	return nil
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// formatQty 数量向下取整到 3 位小数。
// TODO: 从 exchangeInfo 读取各交易对的数量步长，替换固定精度。
func formatQty(q float64) string {
	q = math.Floor(q*1e3) / 1e3
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

// clientOrderID 裁剪到交易所允许的 36 字符。
func clientOrderID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 36 {
		return raw[:36]
	}
	return raw
}
