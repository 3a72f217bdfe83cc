package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"kestrel/internal/market"
)

// CandleSource 基于合约行情接口的 market.CandleSource 实现。
// 行情接口无需鉴权，可与交易客户端共用一个 SDK 实例。
type CandleSource struct {
	api *futures.Client
}

func NewCandleSource(cfg Config) *CandleSource {
	futures.UseTestnet = cfg.Testnet
	return &CandleSource{api: futures.NewClient(cfg.APIKey, cfg.APISecret)}
}

// CandlesOf 复用交易客户端的 SDK 实例构造行情源。
func (v *Venue) CandlesOf() *CandleSource {
	return &CandleSource{api: v.api}
}

func (s *CandleSource) Klines(ctx context.Context, pair, interval string, limit int) (market.Candles, error) {
	if limit <= 0 {
		limit = 120
	}
	if limit > 1000 {
		limit = 1000
	}
	raw, err := s.api.NewKlinesService().
		Symbol(strings.ToUpper(strings.TrimSpace(pair))).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance K 线 %s %s: %w", pair, interval, err)
	}
	out := make(market.Candles, 0, len(raw))
	for _, k := range raw {
		out = append(out, market.Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      parseF(k.Open),
			High:      parseF(k.High),
			Low:       parseF(k.Low),
			Close:     parseF(k.Close),
			Volume:    parseF(k.Volume),
		})
	}
	return out, nil
}
