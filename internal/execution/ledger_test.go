package execution

import (
	"errors"
	"testing"
	"time"
)

func TestReserveCreatesHeldReservation(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	r, err := l.Reserve("BTCUSDT", 200, "d-1", now)
	if err != nil {
		t.Fatalf("占资失败: %v", err)
	}
	if r.ID == "" {
		t.Fatalf("预留必须有 ID")
	}
	if r.Status != StatusHeld {
		t.Fatalf("期望 HELD, 得到 %s", r.Status)
	}
	if r.Pair != "BTCUSDT" || r.Notional != 200 || r.DecisionID != "d-1" {
		t.Fatalf("预留字段不完整: %+v", r)
	}
	held, ok := l.HeldFor("BTCUSDT")
	if !ok || held.ID != r.ID {
		t.Fatalf("HeldFor 应返回刚占的预留")
	}
}

func TestReserveRejectsDuplicatePair(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	if _, err := l.Reserve("BTCUSDT", 200, "d-1", now); err != nil {
		t.Fatalf("首次占资失败: %v", err)
	}
	_, err := l.Reserve("BTCUSDT", 300, "d-2", now)
	if !errors.Is(err, ErrDuplicateReservation) {
		t.Fatalf("同交易对二次占资期望 ErrDuplicateReservation, 得到 %v", err)
	}
	// 其他交易对不受影响
	if _, err := l.Reserve("ETHUSDT", 100, "d-3", now); err != nil {
		t.Fatalf("不同交易对应当允许: %v", err)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	l := NewLedger()
	if _, err := l.Reserve("", 200, "d-1", time.Now()); err == nil {
		t.Fatalf("空交易对应报错")
	}
	if _, err := l.Reserve("BTCUSDT", 0, "d-1", time.Now()); err == nil {
		t.Fatalf("非正名义价值应报错")
	}
}

func TestCommitMakesReservationTerminal(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	r, _ := l.Reserve("BTCUSDT", 200, "d-1", now)

	if err := l.Commit(r.ID, now.Add(time.Second)); err != nil {
		t.Fatalf("Commit 失败: %v", err)
	}
	got, _ := l.Get(r.ID)
	if got.Status != StatusCommitted || got.ResolvedAt.IsZero() {
		t.Fatalf("期望 COMMITTED 且有处置时间, 得到 %+v", got)
	}
	if _, held := l.HeldFor("BTCUSDT"); held {
		t.Fatalf("终结后 pair 不应再被占用")
	}
	// 终态不可变
	if err := l.Release(r.ID, now.Add(2*time.Second)); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("COMMITTED→RELEASED 期望 ErrIllegalTransition, 得到 %v", err)
	}
	if err := l.Commit(r.ID, now.Add(2*time.Second)); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("重复 Commit 期望 ErrIllegalTransition, 得到 %v", err)
	}
}

func TestReleaseFreesPairForNewReservation(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	r, _ := l.Reserve("BTCUSDT", 200, "d-1", now)
	if err := l.Release(r.ID, now.Add(time.Second)); err != nil {
		t.Fatalf("Release 失败: %v", err)
	}
	got, _ := l.Get(r.ID)
	if got.Status != StatusReleased {
		t.Fatalf("期望 RELEASED, 得到 %s", got.Status)
	}
	if _, err := l.Reserve("BTCUSDT", 300, "d-2", now.Add(2*time.Second)); err != nil {
		t.Fatalf("释放后应可再次占资: %v", err)
	}
}

func TestResolveUnknownReservation(t *testing.T) {
	l := NewLedger()
	if err := l.Commit("no-such-id", time.Now()); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("期望 ErrReservationNotFound, 得到 %v", err)
	}
}

func TestSweepStaleReleasesOnlyAgedHeld(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	old, _ := l.Reserve("BTCUSDT", 200, "d-1", base.Add(-10*time.Minute))
	fresh, _ := l.Reserve("ETHUSDT", 100, "d-2", base.Add(-time.Minute))

	released := l.SweepStale(3*time.Minute, base)
	if len(released) != 1 || released[0].ID != old.ID {
		t.Fatalf("期望只释放超龄预留, 得到 %+v", released)
	}
	if released[0].Status != StatusReleased {
		t.Fatalf("清理结果应为 RELEASED, 得到 %s", released[0].Status)
	}
	if _, held := l.HeldFor("BTCUSDT"); held {
		t.Fatalf("被清理的 pair 不应再被占用")
	}
	if _, held := l.HeldFor("ETHUSDT"); !held {
		t.Fatalf("未超龄的 HELD 不得被清理")
	}
	_ = fresh
}

func TestSweepStaleGCsOldTerminalRecords(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	r, _ := l.Reserve("BTCUSDT", 200, "d-1", base.Add(-20*time.Minute))
	if err := l.Release(r.ID, base.Add(-15*time.Minute)); err != nil {
		t.Fatalf("Release 失败: %v", err)
	}

	l.SweepStale(3*time.Minute, base)
	if _, ok := l.Get(r.ID); ok {
		t.Fatalf("超龄终态记录应被回收")
	}
	if got := l.Snapshot(); len(got) != 0 {
		t.Fatalf("账本应为空, 得到 %+v", got)
	}
}
