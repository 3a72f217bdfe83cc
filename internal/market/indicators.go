package market

import talib "github.com/markcheno/go-talib"

// 指标参数沿用常见缺省：RSI/ATR 14，EMA 12/26，MACD 12/26/9。
const (
	rsiPeriod     = 14
	atrPeriod     = 14
	emaFastPeriod = 12
	emaSlowPeriod = 26
	macdSignalLen = 9
)

// minBarsForIndicators 低于该根数时跳过技术面计算，只留价格。
const minBarsForIndicators = emaSlowPeriod + macdSignalLen + 1

// Indicators 由一段 K 线算出的技术面汇总。
type Indicators struct {
	RSI14      float64
	EMAFast    float64
	EMASlow    float64
	MACD       float64
	MACDSignal float64
	ATR14      float64
}

// ComputeIndicators 基于收盘/高低价序列计算常用指标；样本不足时返回 ok=false。
func ComputeIndicators(cs Candles) (Indicators, bool) {
	if len(cs) < minBarsForIndicators {
		return Indicators{}, false
	}
	closes := make([]float64, len(cs))
	highs := make([]float64, len(cs))
	lows := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	emaFast := talib.Ema(closes, emaFastPeriod)
	emaSlow := talib.Ema(closes, emaSlowPeriod)
	macd, signal, _ := talib.Macd(closes, emaFastPeriod, emaSlowPeriod, macdSignalLen)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	last := len(closes) - 1
	return Indicators{
		RSI14:      rsi[last],
		EMAFast:    emaFast[last],
		EMASlow:    emaSlow[last],
		MACD:       macd[last],
		MACDSignal: signal[last],
		ATR14:      atr[last],
	}, true
}
