package execution

import (
	"sync"
	"time"
)

// DailyCounter 当日成交笔数，按 UTC 日界自动清零。
// 只有确认成交的交易会计数，且每笔恰好一次。
type DailyCounter struct {
	mu    sync.Mutex
	day   string
	count int
	limit int
}

func NewDailyCounter(limit int) *DailyCounter {
	if limit <= 0 {
		limit = 20
	}
	return &DailyCounter{limit: limit}
}

func dayKey(now time.Time) string { return now.UTC().Format("2006-01-02") }

func (c *DailyCounter) roll(now time.Time) {
	if k := dayKey(now); k != c.day {
		c.day = k
		c.count = 0
	}
}

// Allow 今日是否还有额度。
func (c *DailyCounter) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(now)
	return c.count < c.limit
}

// Increment 计一笔成交，返回当日累计。
func (c *DailyCounter) Increment(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(now)
	c.count++
	return c.count
}

// Seed 用持久化的当日笔数初始化计数，进程重启后限额不清零。
func (c *DailyCounter) Seed(count int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(now)
	if count > c.count {
		c.count = count
	}
}

// Count 当日累计成交笔数。
func (c *DailyCounter) Count(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(now)
	return c.count
}

// Limit 配置的日上限。
func (c *DailyCounter) Limit() int { return c.limit }
