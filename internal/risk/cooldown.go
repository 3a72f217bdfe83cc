package risk

import (
	"strings"
	"sync"
	"time"
)

// 中文说明：
// 冷却缓存：刚被拒绝的 (交易对, 动作) 指纹在 TTL 内不再被重新提案。
// 只有拒绝会写入；批准不会留下任何记录。

// RejectionRecord 一条冷却记录。
type RejectionRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CooldownCache 指纹 → 冷却记录，RWMutex 保护。读取时顺手判过期。
type CooldownCache struct {
	mu   sync.RWMutex
	data map[string]RejectionRecord
	ttl  time.Duration
}

func NewCooldownCache(ttl time.Duration) *CooldownCache {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &CooldownCache{data: make(map[string]RejectionRecord), ttl: ttl}
}

func normalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.TrimSpace(fp))
}

// Put 写入一条拒绝记录，过期时间 = now + ttl。
func (c *CooldownCache) Put(fp, reason string, now time.Time) {
	fp = normalizeFingerprint(fp)
	if fp == "" {
		return
	}
	c.mu.Lock()
	c.data[fp] = RejectionRecord{Fingerprint: fp, Reason: reason, ExpiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Active 指纹是否仍在冷却期内。
func (c *CooldownCache) Active(fp string, now time.Time) (RejectionRecord, bool) {
	fp = normalizeFingerprint(fp)
	c.mu.RLock()
	rec, ok := c.data[fp]
	c.mu.RUnlock()
	if !ok || !now.Before(rec.ExpiresAt) {
		return RejectionRecord{}, false
	}
	return rec, true
}

// Purge 清理已过期的记录，返回清掉的条数。由应用层定期调用。
func (c *CooldownCache) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for fp, rec := range c.data {
		if !now.Before(rec.ExpiresAt) {
			delete(c.data, fp)
			n++
		}
	}
	return n
}

// Snapshot 返回未过期记录的拷贝，查询接口使用。
func (c *CooldownCache) Snapshot(now time.Time) []RejectionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.data) == 0 {
		return nil
	}
	out := make([]RejectionRecord, 0, len(c.data))
	for _, rec := range c.data {
		if now.Before(rec.ExpiresAt) {
			out = append(out, rec)
		}
	}
	return out
}
