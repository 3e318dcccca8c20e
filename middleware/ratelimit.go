package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// slidingWindow 按键统计窗口内的请求次数
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// allow 记录一次请求，超过上限返回 false
func (s *slidingWindow) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ts := prune(s.hits[key], now.Add(-s.window))
	if len(ts) >= s.max {
		s.hits[key] = ts
		return false
	}
	s.hits[key] = append(ts, now)
	return true
}

// sweep 清理过期数据
func (s *slidingWindow) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.window)
	for key, ts := range s.hits {
		if ts = prune(ts, cutoff); len(ts) == 0 {
			delete(s.hits, key)
		} else {
			s.hits[key] = ts
		}
	}
}

// RateLimit 通用限流中间件，keyFunc 决定计数维度
func RateLimit(maxAttempts int, window time.Duration, keyFunc func(*gin.Context) string, message string) gin.HandlerFunc {
	limiter := newSlidingWindow(maxAttempts, window)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !limiter.allow(keyFunc(c)) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": message,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoginRateLimit 登录接口限流，每 IP 在 window 内最多 maxAttempts 次
func LoginRateLimit(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return RateLimit(maxAttempts, window, func(c *gin.Context) string {
		return c.ClientIP()
	}, "登录尝试过于频繁，请稍后再试")
}

// SyncRateLimit 手动触发同步的限流，按用户计数，未登录时退化为 IP
func SyncRateLimit(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return RateLimit(maxAttempts, window, func(c *gin.Context) string {
		if id := GetCurrentUserID(c); id != 0 {
			return fmt.Sprintf("user:%d", id)
		}
		return "ip:" + c.ClientIP()
	}, "同步请求过于频繁，请稍后再试")
}
