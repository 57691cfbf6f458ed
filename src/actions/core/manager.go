package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Module is a long-running part of the bot: the Discord governance module,
// the HTTP API.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in order and stops the started ones in reverse.
type Manager struct {
	mu      sync.Mutex
	modules []Module
	running []Module
}

func NewManager(mods ...Module) *Manager {
	return &Manager{modules: mods}
}

// Add registers a module. Modules cannot be added once the manager runs.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return fmt.Errorf("actions: cannot add %s after start", mod.Name())
	}
	m.modules = append(m.modules, mod)
	return nil
}

// Start starts every module. When one fails the modules already started are
// stopped again, bounded by ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return fmt.Errorf("actions: manager already started")
	}

	running := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod == nil {
			continue
		}
		if err := mod.Start(ctx); err != nil {
			if stopErr := stopAll(ctx, running); stopErr != nil {
				log.Printf("actions: rollback after %s failed: %v", mod.Name(), stopErr)
			}
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		log.Printf("actions: %s started", mod.Name())
		running = append(running, mod)
	}
	m.running = running
	return nil
}

// Stop stops the started modules in reverse order. A module still stopping
// when ctx is done is left behind and reported; the rest are still asked to
// stop.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := stopAll(ctx, m.running)
	m.running = nil
	return err
}

func stopAll(ctx context.Context, mods []Module) error {
	var errs []error
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		done := make(chan struct{})
		go func() {
			defer close(done)
			mod.Stop(ctx)
		}()
		select {
		case <-done:
			log.Printf("actions: %s stopped", mod.Name())
		case <-ctx.Done():
			log.Printf("actions: %s still stopping at shutdown deadline", mod.Name())
			errs = append(errs, fmt.Errorf("stop %s: %w", mod.Name(), ctx.Err()))
		}
	}
	return errors.Join(errs...)
}
