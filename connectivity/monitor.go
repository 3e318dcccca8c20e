// Package connectivity 维护在线/离线状态，替代浏览器的 online/offline 事件。
package connectivity

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Prober 轻量连通性探测
type Prober interface {
	Probe(ctx context.Context) error
}

// Listener 状态变化回调，仅在状态翻转时触发
type Listener func(online bool)

// Monitor 连通性监视器
type Monitor struct {
	prober   Prober
	timeout  time.Duration
	interval time.Duration

	online atomic.Bool
	// forced 手动指定状态后暂停自动探测
	forced atomic.Bool

	mu        sync.Mutex
	listeners []Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor 创建监视器，初始状态为离线，直到首次探测成功
func NewMonitor(prober Prober, timeout, interval time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{prober: prober, timeout: timeout, interval: interval}
}

// Online 当前是否在线
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe 注册状态变化回调
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Check 执行一次带超时的探测并更新状态
func (m *Monitor) Check(ctx context.Context) bool {
	if m.forced.Load() {
		return m.Online()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.prober.Probe(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		log.Printf("连通性探测失败: %v", err)
	}
	m.set(err == nil)
	return err == nil
}

// SetOnline 手动设置状态（调试或外部事件），之后暂停自动探测，调用 Resume 恢复
func (m *Monitor) SetOnline(online bool) {
	m.forced.Store(true)
	m.set(online)
}

// Resume 恢复自动探测
func (m *Monitor) Resume() {
	m.forced.Store(false)
}

// Forced 是否处于手动模式
func (m *Monitor) Forced() bool {
	return m.forced.Load()
}

func (m *Monitor) set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		log.Println("网络已连接")
	} else {
		log.Println("网络已断开，进入离线模式")
	}
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		l(online)
	}
}

// Start 立即探测一次，然后按间隔周期探测
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.Check(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop 停止周期探测
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
