package retry

import (
	"context"
	"fmt"
	"time"
)

// 中文说明：
// 显式的有界重试策略值：最大尝试次数 + 固定退避。外部调用点各自持有
// 一份策略，"重试耗尽"以统一的错误形态交给所在阶段的失败迁移处理。

// Policy 有界重试策略。MaxAttempts=1 表示不重试。
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Once 恰好重试一次的策略。
func Once(backoff time.Duration) Policy {
	return Policy{MaxAttempts: 2, Backoff: backoff}
}

// None 不重试。
func None() Policy {
	return Policy{MaxAttempts: 1}
}

// Do 依策略执行 fn；全部尝试失败后返回包装了末次错误的"重试耗尽"。
// 退避期间响应 ctx 取消。
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Backoff > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("重试 %d 次后仍失败: %w", attempts, lastErr)
}
