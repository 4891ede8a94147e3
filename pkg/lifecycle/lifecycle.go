package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager 协调后台服务的注册与停机
// 它由进程引导代码创建并持有，向每个后台服务分发一个Handle
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个新的生命周期管理器
func NewManager() *Manager {
	m := &Manager{
		services: make(map[string]bool),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle 为一个后台服务注册并返回生命周期句柄
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[name] {
		return nil, fmt.Errorf("生命周期管理器: 服务 '%s' 已被注册", name)
	}
	m.services[name] = true
	m.wg.Add(1)

	return &Handle{
		ctx: m.ctx,
		Close: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if !m.services[name] {
				return
			}
			delete(m.services, name)
			m.wg.Done()
		},
	}, nil
}

// Shutdown 向所有持有句柄的服务广播停机信号
func (m *Manager) Shutdown() {
	m.cancel()
}

// WaitWithTimeout 等待所有已注册服务退出，超时后返回仍未退出的服务名
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		remaining := make([]string, 0, len(m.services))
		for name := range m.services {
			remaining = append(remaining, name)
		}
		return remaining
	}
}

// Handle 是分发给单个后台服务的生命周期控制器
// 服务的Goroutine退出前必须通过defer调用Close，通知管理器自己已结束
type Handle struct {
	ctx   context.Context
	Close func()
}

// Ctx 返回句柄内部的上下文
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done 返回在停机信号广播时关闭的channel
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}
