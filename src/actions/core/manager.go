// Package core runs the long-lived parts of the service as modules with an
// ordered start and a reverse-ordered stop.
package core

import (
	"context"
	"fmt"
	"sync"
)

// Module is a long-lived component. Start must not block.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in registration order and stops them in reverse.
type Manager struct {
	modules []Module
	mu      sync.Mutex
	started bool
}

func NewManager(mods ...Module) *Manager {
	return &Manager{modules: mods}
}

// Add registers a module. It fails once the manager has started.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("modules: cannot add %s after start", mod.Name())
	}
	m.modules = append(m.modules, mod)
	return nil
}

// Names lists registered modules in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod != nil {
			out = append(out, mod.Name())
		}
	}
	return out
}

// Start starts every module. If one fails, those already started are
// stopped in reverse order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("modules: already started")
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod == nil {
			continue
		}
		if err := mod.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		started = append(started, mod)
	}

	m.started = true
	return nil
}

// Stop stops all modules in reverse order. It is a no-op before Start.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	for i := len(m.modules) - 1; i >= 0; i-- {
		if mod := m.modules[i]; mod != nil {
			mod.Stop(ctx)
		}
	}
	m.started = false
}

// Loop adapts a blocking run function into a Module. Stop cancels the run
// context and waits for run to return or for the stop context to expire.
type Loop struct {
	name   string
	run    func(ctx context.Context)
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(name string, run func(ctx context.Context)) *Loop {
	return &Loop{name: name, run: run}
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Start(ctx context.Context) error {
	if l.done != nil {
		return fmt.Errorf("%s: already running", l.name)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		l.run(runCtx)
	}()
	return nil
}

func (l *Loop) Stop(ctx context.Context) {
	if l.done == nil {
		return
	}
	l.cancel()
	select {
	case <-l.done:
	case <-ctx.Done():
	}
	l.done = nil
}
