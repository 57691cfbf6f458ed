// Package scheduler runs periodic jobs and keeps at most one live handle per
// guild and label.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Disposer stops a registered job. Calling it more than once is safe.
type Disposer func()

// Scheduler starts ticker-driven jobs bound to a parent context.
type Scheduler struct {
	ctx context.Context
	wg  sync.WaitGroup
}

func New(ctx context.Context) *Scheduler {
	return &Scheduler{ctx: ctx}
}

// Register runs fn immediately and then every interval until the returned
// Disposer is called or the scheduler's context ends. Runs of one job never
// overlap.
func (s *Scheduler) Register(interval time.Duration, fn func(context.Context)) Disposer {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			fn(ctx)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// Wait blocks until every job goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

type key struct {
	guildID string
	label   string
}

// Registry tracks one Disposer per (guild, label).
type Registry struct {
	sched   *Scheduler
	mu      sync.Mutex
	handles map[key]Disposer
}

func NewRegistry(s *Scheduler) *Registry {
	return &Registry{sched: s, handles: make(map[key]Disposer)}
}

// Register disposes any job already held for (guildID, label) before
// starting the new one.
func (r *Registry) Register(guildID, label string, interval time.Duration, fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{guildID: guildID, label: label}
	if prev, ok := r.handles[k]; ok {
		prev()
		log.Printf("scheduler: replaced %s job for guild %s", label, guildID)
	}
	r.handles[k] = r.sched.Register(interval, fn)
}

// Dispose stops the job for (guildID, label), if any.
func (r *Registry) Dispose(guildID, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{guildID: guildID, label: label}
	if d, ok := r.handles[k]; ok {
		d()
		delete(r.handles, k)
	}
}

// DisposeAll stops every job.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, d := range r.handles {
		d()
		delete(r.handles, k)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
