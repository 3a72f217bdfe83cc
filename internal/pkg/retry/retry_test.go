package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Once(time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("首次成功不应报错: %v", err)
	}
	if calls != 1 {
		t.Fatalf("成功后不得重试, 得到 %d 次调用", calls)
	}
}

func TestDoRetriesExactlyOnce(t *testing.T) {
	calls := 0
	err := Once(time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("首次失败")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("重试成功不应报错: %v", err)
	}
	if calls != 2 {
		t.Fatalf("期望恰好 2 次调用, 得到 %d", calls)
	}
}

func TestDoExhaustionWrapsLastError(t *testing.T) {
	last := errors.New("第二次失败")
	calls := 0
	err := Once(time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("第一次失败")
		}
		return last
	})
	if calls != 2 {
		t.Fatalf("期望恰好 2 次调用, 得到 %d", calls)
	}
	if !errors.Is(err, last) {
		t.Fatalf("耗尽后应包装末次错误, 得到 %v", err)
	}
	if !strings.Contains(err.Error(), "重试 2 次") {
		t.Fatalf("错误应说明尝试次数, 得到 %v", err)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Once(time.Hour).Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("失败")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("退避期间应响应取消, 得到 %v", err)
	}
	if calls != 1 {
		t.Fatalf("取消后不得再次尝试, 得到 %d 次", calls)
	}
}

func TestNonePolicyNeverRetries(t *testing.T) {
	boom := errors.New("失败")
	calls := 0
	err := None().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	if calls != 1 {
		t.Fatalf("None 策略只尝试一次, 得到 %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("应包装原错误, 得到 %v", err)
	}
}

func TestZeroAttemptsCoercedToOne(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Fatalf("零值策略应按一次执行, 得到 %d", calls)
	}
}
