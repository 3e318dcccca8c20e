// Package resilient 为远端读写提供容错：重试、超时、缓存回退，以及失败写入的本地暂存与回放。
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"financify/remote"
	"financify/storage"
)

// ErrTimeout 单次远端调用超时
var ErrTimeout = errors.New("resilient: remote call timed out")

// ErrPendingNotFound 暂存写入不存在
var ErrPendingNotFound = errors.New("resilient: pending write not found")

// Connectivity 网络状态
type Connectivity interface {
	Online() bool
}

// Options 重试参数
type Options struct {
	Retries   int
	BaseDelay time.Duration
	Timeout   time.Duration
	Now       func() time.Time
}

// Wrapper 远端调用容错包装
type Wrapper struct {
	backend   remote.Backend
	store     storage.Store
	conn      Connectivity
	retries   int
	baseDelay time.Duration
	timeout   time.Duration
	now       func() time.Time

	replaying atomic.Bool
}

// New 创建包装器
func New(backend remote.Backend, store storage.Store, conn Connectivity, opts Options) *Wrapper {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Wrapper{
		backend:   backend,
		store:     store,
		conn:      conn,
		retries:   opts.Retries,
		baseDelay: opts.BaseDelay,
		timeout:   opts.Timeout,
		now:       opts.Now,
	}
}

// Backend 底层远端客户端
func (w *Wrapper) Backend() remote.Backend {
	return w.backend
}

// Online 当前是否在线
func (w *Wrapper) Online() bool {
	return w.conn.Online()
}

type outcome[T any] struct {
	val T
	err error
}

// Call 执行远端调用。每次尝试受 timeout 限制，临时失败按 base*2^(n-1) 退避后重试，
// 永久错误立即返回
func Call[T any](ctx context.Context, w *Wrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		val, err := attemptOnce(ctx, w.timeout, fn)
		if err != nil && (remote.IsPermanent(err) || ctx.Err() != nil) {
			return val, backoff.Permanent(err)
		}
		return val, err
	}
	return backoff.RetryWithData(op, w.backOff(ctx))
}

// backOff 共 retries 次尝试，间隔从 baseDelay 起倍增，不加随机抖动
func (w *Wrapper) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = w.baseDelay << w.retries
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.retries-1)), ctx)
}

// attemptOnce 超时后不等待调用返回，结果由带缓冲的通道丢弃
func attemptOnce[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(actx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-actx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// Do 无返回值的远端调用
func (w *Wrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, w, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Once 单次远端调用，只受 timeout 限制，不重试
func Once[T any](ctx context.Context, w *Wrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	return attemptOnce(ctx, w.timeout, fn)
}
