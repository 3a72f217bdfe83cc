package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 中文说明：
// 敞口账本：下单前先占资（HELD），成交转 COMMITTED，失败/超时转 RELEASED。
// 同一交易对最多一笔 HELD；预留不允许凭空消失，清理轮兜底释放超龄 HELD。

// ReservationStatus 预留状态，只允许 HELD→COMMITTED / HELD→RELEASED。
type ReservationStatus int

const (
	StatusHeld ReservationStatus = iota + 1
	StatusCommitted
	StatusReleased
)

func (s ReservationStatus) String() string {
	switch s {
	case StatusHeld:
		return "HELD"
	case StatusCommitted:
		return "COMMITTED"
	case StatusReleased:
		return "RELEASED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Reservation 一笔资金预留。
type Reservation struct {
	ID         string            `json:"id"`
	Pair       string            `json:"pair"`
	Notional   float64           `json:"notional"`
	DecisionID string            `json:"decision_id"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt time.Time         `json:"resolved_at,omitempty"`
}

var (
	// ErrDuplicateReservation 同一交易对重复占资。资金安全不变量被破坏，按编程错误大声上报。
	ErrDuplicateReservation = errors.New("同一交易对已存在 HELD 预留")
	// ErrReservationNotFound 预留不存在。
	ErrReservationNotFound = errors.New("预留不存在")
	// ErrIllegalTransition 非法的预留状态迁移（如重复 Commit）。
	ErrIllegalTransition = errors.New("非法的预留状态迁移")
)

// Ledger 内存账本，互斥锁保证 reserve-then-submit 对并发检查原子。
type Ledger struct {
	mu         sync.Mutex
	byID       map[string]*Reservation
	heldByPair map[string]string // pair -> reservation id
}

func NewLedger() *Ledger {
	return &Ledger{
		byID:       make(map[string]*Reservation),
		heldByPair: make(map[string]string),
	}
}

// Reserve 为 pair 占资。已有 HELD 预留时立刻失败，不排队不覆盖。
func (l *Ledger) Reserve(pair string, notional float64, decisionID string, now time.Time) (Reservation, error) {
	if pair == "" {
		return Reservation{}, fmt.Errorf("缺少交易对")
	}
	if notional <= 0 {
		return Reservation{}, fmt.Errorf("预留名义价值必须为正: %v", notional)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.heldByPair[pair]; ok {
		return Reservation{}, fmt.Errorf("%w: %s（预留 %s）", ErrDuplicateReservation, pair, existing)
	}
	r := &Reservation{
		ID:         uuid.NewString(),
		Pair:       pair,
		Notional:   notional,
		DecisionID: decisionID,
		Status:     StatusHeld,
		CreatedAt:  now,
	}
	l.byID[r.ID] = r
	l.heldByPair[pair] = r.ID
	return *r, nil
}

// Commit 确认成交，HELD → COMMITTED。
func (l *Ledger) Commit(id string, now time.Time) error {
	return l.resolve(id, StatusCommitted, now)
}

// Release 回滚占资，HELD → RELEASED。
func (l *Ledger) Release(id string, now time.Time) error {
	return l.resolve(id, StatusReleased, now)
}

func (l *Ledger) resolve(id string, target ReservationStatus, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	if r.Status != StatusHeld {
		return fmt.Errorf("%w: %s 当前 %s，不能转 %s", ErrIllegalTransition, id, r.Status, target)
	}
	r.Status = target
	r.ResolvedAt = now
	delete(l.heldByPair, r.Pair)
	return nil
}

// HeldFor 查询 pair 当前的 HELD 预留。
func (l *Ledger) HeldFor(pair string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.heldByPair[pair]
	if !ok {
		return Reservation{}, false
	}
	return *l.byID[id], true
}

// Get 按 ID 查询预留拷贝。
func (l *Ledger) Get(id string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	if !ok {
		return Reservation{}, false
	}
	return *r, true
}

// SweepStale 释放超龄的 HELD 预留（崩溃或丢失的执行留下的敞口），
// 并顺手清掉已终结且同样超龄的记录防止无界增长。返回本轮释放的预留。
func (l *Ledger) SweepStale(maxAge time.Duration, now time.Time) []Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var released []Reservation
	for id, r := range l.byID {
		age := now.Sub(r.CreatedAt)
		if r.Status == StatusHeld && age > maxAge {
			r.Status = StatusReleased
			r.ResolvedAt = now
			delete(l.heldByPair, r.Pair)
			released = append(released, *r)
			continue
		}
		if r.Status != StatusHeld && !r.ResolvedAt.IsZero() && now.Sub(r.ResolvedAt) > maxAge {
			delete(l.byID, id)
		}
	}
	return released
}

// Snapshot 全部预留的拷贝，查询接口使用。
func (l *Ledger) Snapshot() []Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Reservation, 0, len(l.byID))
	for _, r := range l.byID {
		out = append(out, *r)
	}
	return out
}
