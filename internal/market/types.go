package market

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kestrel/internal/pkg/format"
)

// Candle 单根 K 线，时间戳毫秒。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Candles wraps a slice of Candle for helper methods.
type Candles []Candle

// TimeString formats close time (fallback to open time) in UTC.
func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("01-02 15:04") + "Z"
}

// Summary 把一段 K 线压缩成一行文字，供提示词展示。
func (cs Candles) Summary(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	changePct := 0.0
	if base != 0 {
		changePct = (last.Close - base) / base * 100
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, bar := range cs {
		if bar.Low < low {
			low = bar.Low
		}
		if bar.High > high {
			high = bar.High
		}
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("close≈%s", format.Float(last.Close, 4)))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%s)", changePct, iv))
	}
	if low != math.MaxFloat64 && high != -math.MaxFloat64 {
		sb.WriteString(fmt.Sprintf(", 区间 %s–%s", format.Float(low, 4), format.Float(high, 4)))
	}
	return sb.String()
}

// Returns 依次输出相邻收盘价的简单收益率，风控的相关性与 VaR 估计使用。
func (cs Candles) Returns() []float64 {
	if len(cs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(cs)-1)
	for i := 1; i < len(cs); i++ {
		prev := cs[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (cs[i].Close-prev)/prev)
	}
	return out
}

// Snapshot 单个交易对的市场快照：价格、技术面、情绪与采集时间。
// 产出后不可变，每个决策周期只消费一次。
type Snapshot struct {
	Pair        string    `json:"pair"`
	Interval    string    `json:"interval"`
	Price       float64   `json:"price"`
	Change24Pct float64   `json:"change_24h_pct"`
	RSI14       float64   `json:"rsi_14"`
	EMAFast     float64   `json:"ema_fast"`
	EMASlow     float64   `json:"ema_slow"`
	MACD        float64   `json:"macd"`
	MACDSignal  float64   `json:"macd_signal"`
	ATR14       float64   `json:"atr_14"`
	Sentiment   float64   `json:"sentiment"` // [-1,1]，缺省 0 表示无数据
	Returns     []float64 `json:"-"`         // 收益率序列，最新在末尾
	ChartPNG    []byte    `json:"-"`         // 可选：K 线截图（视觉模型输入）
	CollectedAt time.Time `json:"collected_at"`
}

// Age 快照距 now 的年龄。
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.CollectedAt.IsZero() {
		return math.MaxInt64
	}
	return now.Sub(s.CollectedAt)
}

// Stale 判断快照是否超过新鲜度阈值。零值 CollectedAt 一律视为过期。
func (s Snapshot) Stale(maxAge time.Duration, now time.Time) bool {
	if s.CollectedAt.IsZero() {
		return true
	}
	return s.Age(now) > maxAge
}
