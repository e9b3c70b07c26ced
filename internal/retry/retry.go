package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy: 有界重试策略。
// - MaxAttempts: 总尝试次数上限（含首次）；<1 视为 1；
// - Retryable:   判定错误是否值得重试；nil 表示任何错误都不重试；
// - Backoff:     两次尝试之间的等待（可取消）；0 表示立即重试。
type Policy struct {
	MaxAttempts int
	Retryable   func(error) bool
	Backoff     time.Duration
}

// ExhaustedError: 尝试次数用尽；Unwrap 到最后一次错误。
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do 按策略执行 fn；attempt 自 0 起。
// 终止条件：fn 成功；错误不可重试（原样返回）；ctx 取消；次数用尽（返回 *ExhaustedError）。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	var last error
	for attempt := 0; attempt < limit; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}
		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(last) {
			return last
		}
		if attempt+1 < limit {
			if err := sleepWithCtx(ctx, p.Backoff); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
		}
	}
	if limit == 1 {
		return last
	}
	return &ExhaustedError{Attempts: limit, Err: last}
}

// On 返回仅对指定哨兵错误重试的判定函数。
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
