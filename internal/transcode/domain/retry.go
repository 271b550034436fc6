package domain

import "time"

// RetryPolicy 指數退避重試策略
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy 3 次，5s 起跳，最多 5 分鐘
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// Next attempts 為已失敗的次數 (已累加)。
// delay = BaseDelay * 2^(attempts-1)，上限 MaxDelay。
func (p RetryPolicy) Next(attempts int) (bool, time.Duration) {
	if attempts >= p.MaxAttempts {
		return false, 0
	}
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return true, p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return true, delay
}
