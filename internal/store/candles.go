package store

import (
	"errors"
	"sync"
	"time"

	"kestrel/internal/market"
)

// 中文说明：
// 进程内 K 线缓存：按 pair@interval 存放去重后的序列并记录最近写入时间。
// 行情拉取失败时，感知阶段可退回这里的旧数据，由新鲜度检查决定是否可用。

type entry struct {
	candles   market.Candles
	updatedAt time.Time
}

// CandleStore 内存实现，读写都做拷贝，调用方可放心修改返回值。
type CandleStore struct {
	mu   sync.RWMutex
	max  int
	data map[string]entry
}

func NewCandleStore(max int) *CandleStore {
	if max <= 0 {
		max = 500
	}
	return &CandleStore{max: max, data: make(map[string]entry)}
}

func key(pair, interval string) string { return pair + "@" + interval }

// Put 合并写入：按 OpenTime 去重后追加并裁剪到上限。
func (s *CandleStore) Put(pair, interval string, cs market.Candles, now time.Time) error {
	if pair == "" || interval == "" {
		return errors.New("pair/interval 不能为空")
	}
	if len(cs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(pair, interval)
	cur := s.data[k].candles
	if len(cur) > 0 {
		lastOpen := cur[len(cur)-1].OpenTime
		for _, c := range cs {
			if c.OpenTime > lastOpen {
				cur = append(cur, c)
			} else if c.OpenTime == lastOpen {
				// 同一根未收盘的 K 线刷新时覆盖旧值
				cur[len(cur)-1] = c
			}
		}
	} else {
		cur = append(cur, cs...)
	}
	if len(cur) > s.max {
		cur = cur[len(cur)-s.max:]
	}
	s.data[k] = entry{candles: cur, updatedAt: now}
	return nil
}

// Get 返回拷贝与最近写入时间；无数据时 ok=false。
func (s *CandleStore) Get(pair, interval string) (market.Candles, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key(pair, interval)]
	if !ok || len(e.candles) == 0 {
		return nil, time.Time{}, false
	}
	out := make(market.Candles, len(e.candles))
	copy(out, e.candles)
	return out, e.updatedAt, true
}
