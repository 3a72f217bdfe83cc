package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kestrel/internal/decision"
	"kestrel/internal/event"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/venue"
)

// 中文说明：
// 执行阶段协议：占资（HELD）→ 提交订单 → 成交转 COMMITTED 并计数，
// 失败/超时先回滚（RELEASED）再返回 FAILED。资金绝不滞留在没发生的交易上。

// ErrDailyLimitReached 当日成交额度用尽，直接判失败，不接触交易所。
var ErrDailyLimitReached = errors.New("当日交易次数已达上限")

// ResultStatus 执行终态。
type ResultStatus int

const (
	ResultFilled ResultStatus = iota + 1
	ResultFailed
)

func (s ResultStatus) String() string {
	switch s {
	case ResultFilled:
		return "FILLED"
	case ResultFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Result 执行结果。Reservation 记录本次占资的最终形态，便于上层核对。
type Result struct {
	Status      ResultStatus
	TradeID     string
	Reservation Reservation
	Err         error
}

// TradeRecord 成交与决策的关联记录，交给存储层落库。
type TradeRecord struct {
	TradeID    string
	DecisionID string
	Pair       string
	Side       string
	Quantity   float64
	AvgPrice   float64
	Notional   float64
	ExecutedAt time.Time
}

// Recorder 成交落库端口（gateway/database 实现），可为空。
type Recorder interface {
	RecordTrade(ctx context.Context, rec TradeRecord) error
}

type Config struct {
	OrderTimeout   time.Duration
	DefaultSizePct float64
}

// Stage 组合账本、交易所端口与计数器完成执行协议。
type Stage struct {
	cfg      Config
	ledger   *Ledger
	client   venue.Client
	counter  *DailyCounter
	bus      *event.Bus
	recorder Recorder
}

func NewStage(cfg Config, ledger *Ledger, client venue.Client, counter *DailyCounter, bus *event.Bus, recorder Recorder) *Stage {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if cfg.DefaultSizePct <= 0 {
		cfg.DefaultSizePct = 2.0
	}
	return &Stage{cfg: cfg, ledger: ledger, client: client, counter: counter, bus: bus, recorder: recorder}
}

// Ledger 暴露账本，清理轮与查询接口使用。
func (s *Stage) Ledger() *Ledger { return s.ledger }

// Counter 暴露当日计数器。
func (s *Stage) Counter() *DailyCounter { return s.counter }

// Execute 执行一个已获批准的方向性决策（BUY/SELL）。
// 任何失败路径都保证预留以 RELEASED 终结后才返回。
func (s *Stage) Execute(ctx context.Context, d decision.Decision, snap market.Snapshot, portfolio venue.Portfolio) Result {
	now := time.Now()

	if !s.counter.Allow(now) {
		err := fmt.Errorf("%w（%d/%d）", ErrDailyLimitReached, s.counter.Count(now), s.counter.Limit())
		s.emitFailed(d, err)
		return Result{Status: ResultFailed, Err: err}
	}

	notional := s.notionalFor(d, portfolio)
	if snap.Price <= 0 || notional <= 0 {
		err := fmt.Errorf("无法定价: price=%v notional=%v", snap.Price, notional)
		s.emitFailed(d, err)
		return Result{Status: ResultFailed, Err: err}
	}

	// (a) 占资。同一交易对已有 HELD 属于资金安全不变量被破坏，大声上报。
	res, err := s.ledger.Reserve(d.Pair, notional, d.ID, now)
	if err != nil {
		if errors.Is(err, ErrDuplicateReservation) {
			logger.Errorf("资金安全不变量被破坏: %v", err)
		}
		s.emitFailed(d, err)
		return Result{Status: ResultFailed, Err: err}
	}

	// (b) 提交订单，超时受限。
	req := venue.OrderRequest{
		Pair:     d.Pair,
		Side:     d.Action,
		Quantity: notional / snap.Price,
		ClientID: d.ID,
	}
	if d.StopLossPct > 0 {
		req.StopPrice = stopPrice(d.Action, snap.Price, d.StopLossPct)
	}
	octx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	order, err := s.client.SubmitOrder(octx, req)
	cancel()

	// (d) 失败或未成交：先回滚占资再返回。
	if err != nil || !order.Filled {
		if err == nil {
			err = fmt.Errorf("订单未成交")
		}
		if rerr := s.ledger.Release(res.ID, time.Now()); rerr != nil {
			logger.Errorf("回滚预留 %s 失败（资金安全不变量）: %v", res.ID, rerr)
		}
		res, _ = s.ledger.Get(res.ID)
		logger.Warnf("下单失败 %s %s: %v", d.Pair, d.Action, err)
		s.emitFailed(d, err)
		return Result{Status: ResultFailed, Reservation: res, Err: err}
	}

	// (c) 成交：占资转 COMMITTED，当日计数恰好 +1，落库关联记录。
	if cerr := s.ledger.Commit(res.ID, time.Now()); cerr != nil {
		logger.Errorf("预留 %s 状态迁移异常: %v", res.ID, cerr)
	}
	res, _ = s.ledger.Get(res.ID)
	count := s.counter.Increment(now)

	if s.recorder != nil {
		rec := TradeRecord{
			TradeID:    order.TradeID,
			DecisionID: d.ID,
			Pair:       d.Pair,
			Side:       d.Action,
			Quantity:   order.FilledQty,
			AvgPrice:   order.AvgPrice,
			Notional:   notional,
			ExecutedAt: now,
		}
		if err := s.recorder.RecordTrade(ctx, rec); err != nil {
			logger.Warnf("成交记录落库失败 %s: %v", order.TradeID, err)
		}
	}

	logger.Infof("✓ 成交 %s %s qty=%.6f avg=%.4f（今日第 %d 笔）", d.Pair, d.Action, order.FilledQty, order.AvgPrice, count)
	s.bus.Emit(event.Event{
		Type:       event.TradeExecuted,
		Pair:       d.Pair,
		DecisionID: d.ID,
		Fields: map[string]any{
			"trade_id":    order.TradeID,
			"quantity":    order.FilledQty,
			"avg_price":   order.AvgPrice,
			"notional":    notional,
			"daily_count": count,
		},
	})
	return Result{Status: ResultFilled, TradeID: order.TradeID, Reservation: res}
}

// Sweep 周期性清理：释放超龄 HELD 预留，防止敞口被永久锁死。
func (s *Stage) Sweep(maxAge time.Duration) int {
	released := s.ledger.SweepStale(maxAge, time.Now())
	for _, r := range released {
		logger.Warnf("清理超龄预留 %s（%s，创建于 %s）", r.ID, r.Pair, r.CreatedAt.Format("15:04:05"))
	}
	return len(released)
}

func (s *Stage) emitFailed(d decision.Decision, err error) {
	s.bus.Emit(event.Event{
		Type:       event.TradeFailed,
		Pair:       d.Pair,
		DecisionID: d.ID,
		Fields:     map[string]any{"error": err.Error()},
	})
}

func (s *Stage) notionalFor(d decision.Decision, portfolio venue.Portfolio) float64 {
	pct := d.SizePct
	if pct <= 0 {
		pct = s.cfg.DefaultSizePct
	}
	return portfolio.Equity() * pct / 100
}

// stopPrice 由止损幅度换算触发价：做多向下偏移，做空向上偏移。
func stopPrice(action string, price, pct float64) float64 {
	switch action {
	case decision.ActionBuy:
		return price * (1 - pct/100)
	case decision.ActionSell:
		return price * (1 + pct/100)
	default:
		return 0
	}
}
