package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 控制向量化请求的节奏
// 多条流水线共用同一个 Pacer 时即为进程级的限流
type Pacer interface {
	// Wait 阻塞直到允许发起下一次请求，ctx取消时返回错误
	Wait(ctx context.Context) error
}

// RateLimitRecorder 在服务端返回限流时暂停所有请求
type RateLimitRecorder interface {
	RecordRateLimit(backoff time.Duration)
}

// DefaultPaceInterval 默认的请求间隔
const DefaultPaceInterval = 100 * time.Millisecond

// defaultRateLimitBackoff 服务端限流后的默认暂停时间
const defaultRateLimitBackoff = 30 * time.Second

// RatePacer 基于令牌桶的节奏控制
type RatePacer struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
}

// NewRatePacer 创建令牌桶节奏控制，每 interval 产生一个令牌
func NewRatePacer(interval time.Duration, burst int) *RatePacer {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RatePacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait 先等待限流暂停结束，再等待令牌
func (p *RatePacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return p.limiter.Wait(ctx)
}

// RecordRateLimit 记录一次服务端限流，backoff内的请求都会等待
func (p *RatePacer) RecordRateLimit(backoff time.Duration) {
	if backoff <= 0 {
		backoff = defaultRateLimitBackoff
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if at := time.Now().Add(backoff); at.After(p.retryAt) {
		p.retryAt = at
	}
}

// NoPacer 不做任何等待，只响应ctx取消
type NoPacer struct{}

// Wait 实现Pacer接口
func (NoPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}
