package event

import (
	"sync"
	"time"
)

// Sink 事件消费端。Publish 不得阻塞发布方；慢消费者自己起 goroutine。
type Sink interface {
	Publish(Event)
}

// SinkFunc 函数适配器。
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Bus 进程内事件总线：同步扇出到各 sink，并保留最近 N 条供查询接口使用。
type Bus struct {
	mu     sync.RWMutex
	sinks  []Sink
	recent []Event
	max    int
	next   int
	filled bool
}

func NewBus(maxRecent int) *Bus {
	if maxRecent <= 0 {
		maxRecent = 200
	}
	return &Bus{recent: make([]Event, maxRecent), max: maxRecent}
}

// Attach 注册 sink；启动期调用，运行期不再变更。
func (b *Bus) Attach(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit 发布事件：补齐时间戳、写入环形缓冲、逐个通知 sink。
func (b *Bus) Emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	b.recent[b.next] = e
	b.next = (b.next + 1) % b.max
	if b.next == 0 {
		b.filled = true
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	for _, s := range sinks {
		s.Publish(e)
	}
}

// Recent 按时间顺序（旧→新）返回最近的事件，最多 limit 条。
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	size := b.next
	if b.filled {
		size = b.max
	}
	if size == 0 {
		return nil
	}
	ordered := make([]Event, 0, size)
	start := 0
	if b.filled {
		start = b.next
	}
	for i := 0; i < size; i++ {
		ordered = append(ordered, b.recent[(start+i)%b.max])
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
