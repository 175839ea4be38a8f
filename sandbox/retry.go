package sandbox

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy 约束一次可重试操作的行为。
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（含首次调用）。
	MaxAttempts int

	// Interval 两次尝试之间的固定等待时长。
	Interval time.Duration

	// Retryable 判断错误是否为可重试的瞬时错误。
	// 返回 false 的错误立即向调用方传播，不消耗剩余尝试次数。
	Retryable func(error) bool
}

// defaultConnectRetryPolicy 是 Connect 路径的重试策略：
// 沙箱暂停过渡最长约 60 秒，按 2 秒间隔最多重试 30 次。
func defaultConnectRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
		Retryable:   IsPausing,
	}
}

// defaultRunRetryPolicy 是代码/命令执行路径的重试策略：
// 执行面的失败多为瞬时的网络或调度问题，按 5 秒间隔最多重试 5 次。
// 命令非零退出（CommandExitError）是语义结果，不重试；
// 沙箱不存在（not found）是终态，不重试。
func defaultRunRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Interval:    5 * time.Second,
		Retryable:   isRunRetryable,
	}
}

func isRunRetryable(err error) bool {
	var exitErr *CommandExitError
	if errors.As(err, &exitErr) {
		return false
	}
	return !IsNotFound(err)
}

// executeWithRetry 按策略重复调用 op，直到成功、遇到不可重试错误或耗尽尝试次数。
// 耗尽后返回包装了最后一次错误的 RetryExhaustedError。
// 重试等待只阻塞当前调用，ctx 取消时立即返回。
func executeWithRetry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if policy.Retryable == nil || !policy.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if policy.Interval > 0 {
			timer := time.NewTimer(policy.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, &RetryExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}
