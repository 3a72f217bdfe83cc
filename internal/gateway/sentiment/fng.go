package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// 中文说明：
// 从 alternative.me 的 Fear & Greed 指数拉取市场情绪，映射到 [-1,1]：
// 0 → -1（极度恐惧），100 → +1（极度贪婪）。指数每日更新一次，
// 本地缓存 30 分钟，避免每个周期都打外部接口。

const cacheTTL = 30 * time.Minute

type FearGreedSource struct {
	// BaseURL 例如: https://api.alternative.me
	BaseURL string
	Client  *http.Client

	mu        sync.Mutex
	cached    float64
	fetchedAt time.Time
}

func NewFearGreedSource(baseURL string) *FearGreedSource {
	if baseURL == "" {
		baseURL = "https://api.alternative.me"
	}
	return &FearGreedSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Score 返回全市场情绪评分；该指数不区分交易对，pair 仅为满足端口签名。
func (f *FearGreedSource) Score(ctx context.Context, pair string) (float64, error) {
	f.mu.Lock()
	if !f.fetchedAt.IsZero() && time.Since(f.fetchedAt) < cacheTTL {
		v := f.cached
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	url := fmt.Sprintf("%s/fng/?limit=1", f.BaseURL)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fng 接口返回 %d", resp.StatusCode)
	}
	var r struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	if len(r.Data) == 0 {
		return 0, fmt.Errorf("fng 接口无数据")
	}
	raw, err := strconv.ParseFloat(r.Data[0].Value, 64)
	if err != nil {
		return 0, fmt.Errorf("fng 数值非法: %w", err)
	}
	score := raw/50 - 1 // 0..100 → -1..1
	f.mu.Lock()
	f.cached = score
	f.fetchedAt = time.Now()
	f.mu.Unlock()
	return score, nil
}
