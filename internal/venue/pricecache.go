package venue

import (
	"sort"
	"sync"
	"time"
)

// MarkPrice 某交易对最近一次观测到的标记价格。
type MarkPrice struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceCache 标记价格缓存：应用层的刷新轮定期经交易所端口写入，
// 运维接口读取，给持仓视图提供浮盈亏参考价。条目数与持仓同量级，
// 只覆盖不淘汰。
type PriceCache struct {
	mu    sync.RWMutex
	marks map[string]MarkPrice
}

func NewPriceCache() *PriceCache {
	return &PriceCache{marks: make(map[string]MarkPrice)}
}

// Update 用一批持仓刷新缓存。标记价缺失时退回开仓价；两者都没有的
// 条目跳过，不污染缓存。
func (c *PriceCache) Update(positions []Position, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pos := range positions {
		price := pos.MarkPrice
		if price <= 0 {
			price = pos.EntryPrice
		}
		if pos.Pair == "" || price <= 0 {
			continue
		}
		c.marks[pos.Pair] = MarkPrice{Pair: pos.Pair, Price: price, UpdatedAt: now}
	}
}

// Mark 查询单个交易对的缓存价格。
func (c *PriceCache) Mark(pair string) (MarkPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.marks[pair]
	return m, ok
}

// Snapshot 全部缓存价格，按交易对字典序，供状态接口直接输出。
func (c *PriceCache) Snapshot() []MarkPrice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.marks) == 0 {
		return nil
	}
	out := make([]MarkPrice, 0, len(c.marks))
	for _, m := range c.marks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}
