package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"kestrel/internal/logger"
)

// 中文说明：
// 市场快照协作方的缺省实现：拉 K 线 → 写缓存 → 算指标 → 组装 Snapshot。
// 拉取失败时退回缓存旧数据，CollectedAt 用缓存写入时间，交给新鲜度检查裁决。

// SnapshotSource 感知阶段消费的能力端口。
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, pair string) (Snapshot, error)
}

// CandleSource 行情 K 线来源（gateway/binance 实现）。
type CandleSource interface {
	Klines(ctx context.Context, pair, interval string, limit int) (Candles, error)
}

// CandleCache 进程内 K 线缓存（store.CandleStore 实现）。
type CandleCache interface {
	Put(pair, interval string, cs Candles, now time.Time) error
	Get(pair, interval string) (Candles, time.Time, bool)
}

// SentimentSource 可选的情绪评分来源，返回 [-1,1]。
type SentimentSource interface {
	Score(ctx context.Context, pair string) (float64, error)
}

// ChartRenderer 可选的 K 线图渲染器（analysis/visual 实现），产出 PNG。
type ChartRenderer interface {
	Render(ctx context.Context, pair string, cs Candles) ([]byte, error)
}

// Provider 组合以上端口构造快照。
type Provider struct {
	source    CandleSource
	cache     CandleCache
	sentiment SentimentSource // 可空
	chart     ChartRenderer   // 可空
	interval  string
	limit     int
}

func NewProvider(source CandleSource, cache CandleCache, interval string, limit int) *Provider {
	if limit <= 0 {
		limit = 120
	}
	return &Provider{source: source, cache: cache, interval: interval, limit: limit}
}

// WithSentiment 挂接情绪来源，链式调用。
func (p *Provider) WithSentiment(s SentimentSource) *Provider {
	p.sentiment = s
	return p
}

// WithChart 挂接 K 线图渲染器。
func (p *Provider) WithChart(c ChartRenderer) *Provider {
	p.chart = c
	return p
}

// FetchSnapshot 构造 pair 的市场快照。K 线实时拉取失败且缓存也为空时返回错误。
func (p *Provider) FetchSnapshot(ctx context.Context, pair string) (Snapshot, error) {
	now := time.Now()
	collectedAt := now

	candles, err := p.source.Klines(ctx, pair, p.interval, p.limit)
	if err != nil {
		cached, updatedAt, ok := p.cache.Get(pair, p.interval)
		if !ok {
			return Snapshot{}, fmt.Errorf("拉取 %s K 线失败且无缓存: %w", pair, err)
		}
		logger.Warnf("拉取 %s K 线失败，退回缓存（%s 前）: %v", pair, now.Sub(updatedAt).Truncate(time.Second), err)
		candles = cached
		collectedAt = updatedAt
	} else {
		if err := p.cache.Put(pair, p.interval, candles, now); err != nil {
			logger.Warnf("写入 %s K 线缓存失败: %v", pair, err)
		}
	}
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("%s 无可用 K 线", pair)
	}

	snap := Snapshot{
		Pair:        pair,
		Interval:    p.interval,
		Price:       candles[len(candles)-1].Close,
		Change24Pct: change24(candles, p.interval),
		Returns:     candles.Returns(),
		CollectedAt: collectedAt,
	}
	if ind, ok := ComputeIndicators(candles); ok {
		snap.RSI14 = ind.RSI14
		snap.EMAFast = ind.EMAFast
		snap.EMASlow = ind.EMASlow
		snap.MACD = ind.MACD
		snap.MACDSignal = ind.MACDSignal
		snap.ATR14 = ind.ATR14
	}
	if p.sentiment != nil {
		if score, err := p.sentiment.Score(ctx, pair); err != nil {
			logger.Debugf("获取 %s 情绪评分失败: %v", pair, err)
		} else {
			snap.Sentiment = score
		}
	}
	if p.chart != nil {
		if png, err := p.chart.Render(ctx, pair, candles); err != nil {
			logger.Warnf("渲染 %s K 线图失败: %v", pair, err)
		} else {
			snap.ChartPNG = png
		}
	}
	return snap, nil
}

// ReturnsFor 输出 pair 缓存 K 线的收益率序列，供风控估计相关性与 VaR。
func (p *Provider) ReturnsFor(pair string) []float64 {
	cached, _, ok := p.cache.Get(pair, p.interval)
	if !ok {
		return nil
	}
	return cached.Returns()
}

// change24 用 K 线窗口估算 24 小时涨跌幅；窗口不足 24h 时退化为整窗涨跌。
func change24(cs Candles, interval string) float64 {
	if len(cs) < 2 {
		return 0
	}
	last := cs[len(cs)-1].Close
	barsPerDay := 0
	if mins := intervalMinutes(interval); mins > 0 {
		barsPerDay = (24 * 60) / mins
	}
	base := cs[0].Close
	if barsPerDay > 0 && barsPerDay < len(cs) {
		base = cs[len(cs)-1-barsPerDay].Close
	}
	if base == 0 {
		return 0
	}
	return (last - base) / base * 100
}

// intervalMinutes 解析形如 15m/1h/1d 的周期；无法解析返回 0。
func intervalMinutes(s string) int {
	if len(s) < 2 {
		return 0
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0
	}
	switch s[len(s)-1] {
	case 'm':
		return n
	case 'h':
		return n * 60
	case 'd':
		return n * 24 * 60
	default:
		return 0
	}
}
