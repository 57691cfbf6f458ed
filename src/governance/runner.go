package governance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/metrics"
	"github.com/stake-plus/guildgov/src/scheduler"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

// Scan labels.
const (
	JobElection   = "election"
	JobReelection = "reelection"
	JobExpiry     = "expiry"
	JobReconcile  = "reconcile"
)

// Job is one periodic per-guild pass.
type Job struct {
	Label string
	Run   func(ctx context.Context, guildID string) error
}

// Jobs returns the service's periodic passes in the order they should run.
func (s *Service) Jobs() []Job {
	return []Job{
		{Label: JobExpiry, Run: func(ctx context.Context, guildID string) error {
			sessions, err := s.Reelections.ExpireStale(ctx, guildID)
			if err != nil {
				return err
			}
			records, err := s.Impeachments.ExpireStale(ctx, guildID)
			if sessions+records > 0 {
				log.Printf("governance: guild %s: expired %d sessions, %d impeachments", guildID, sessions, records)
			}
			return err
		}},
		{Label: JobElection, Run: s.Elections.Scan},
		{Label: JobReelection, Run: func(ctx context.Context, guildID string) error {
			_, err := s.Reelections.Scan(ctx, guildID)
			return err
		}},
		{Label: JobReconcile, Run: func(ctx context.Context, guildID string) error {
			_, err := s.Executor.Reconcile(ctx, guildID)
			return err
		}},
	}
}

// Locker serialises runs of the same scan. ok is false when another run
// holds the lock.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), ok bool, err error)
}

// LocalLocker locks within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Lock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, true, nil
}

// RedisLocker locks across processes sharing a Redis instance.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), bool, error) {
	token, ok, err := data.AcquireLock(ctx, l.rdb, name, l.ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		if err := data.ReleaseLock(context.Background(), l.rdb, name, token); err != nil {
			log.Printf("governance: release lock %s: %v", name, err)
		}
	}, true, nil
}

// Runner executes jobs across guilds, one guild's failure never stopping
// the others.
type Runner struct {
	jobs    []Job
	locker  Locker
	metrics *metrics.Metrics
}

func NewRunner(jobs []Job, locker Locker) *Runner {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Runner{jobs: jobs, locker: locker}
}

// NewRunner builds a runner over the service's jobs that reports to its
// metrics.
func (s *Service) NewRunner(locker Locker) *Runner {
	r := NewRunner(s.Jobs(), locker)
	r.metrics = s.Metrics
	return r
}

// Run executes the labelled job for every guild. The returned error joins
// one *gov.ScanError per failed guild.
func (r *Runner) Run(ctx context.Context, label string, guildIDs []string) error {
	job, ok := r.job(label)
	if !ok {
		return fmt.Errorf("unknown scan %q", label)
	}
	runID := uuid.NewString()
	var errs []error
	for _, guildID := range guildIDs {
		if err := r.runGuild(ctx, job, guildID); err != nil {
			scanErr := &gov.ScanError{GuildID: guildID, Label: label, Err: err}
			log.Printf("governance: run %s: %v", runID, scanErr)
			errs = append(errs, scanErr)
		}
	}
	return errors.Join(errs...)
}

// RunAll executes every job in order.
func (r *Runner) RunAll(ctx context.Context, guildIDs []string) error {
	var errs []error
	for _, job := range r.jobs {
		if err := r.Run(ctx, job.Label, guildIDs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule registers every job for every guild, replacing earlier handles.
func (r *Runner) Schedule(reg *scheduler.Registry, guildIDs []string, interval time.Duration) {
	for _, guildID := range guildIDs {
		for _, job := range r.jobs {
			job, guildID := job, guildID
			reg.Register(guildID, job.Label, interval, func(ctx context.Context) {
				if err := r.runGuild(ctx, job, guildID); err != nil {
					log.Printf("governance: %v", &gov.ScanError{GuildID: guildID, Label: job.Label, Err: err})
				}
			})
		}
	}
	log.Printf("governance: scheduled %d scans for %d guilds every %s", len(r.jobs), len(guildIDs), interval)
}

func (r *Runner) runGuild(ctx context.Context, job Job, guildID string) (err error) {
	unlock, ok, err := r.locker.Lock(ctx, job.Label+":"+guildID)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if !ok {
		log.Printf("governance: %s scan for guild %s already running, skipped", job.Label, guildID)
		r.metrics.Scan(job.Label, "skipped", 0)
		return nil
	}
	defer unlock()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		r.metrics.Scan(job.Label, result, time.Since(start))
	}()
	return job.Run(ctx, guildID)
}

func (r *Runner) job(label string) (Job, bool) {
	for _, j := range r.jobs {
		if j.Label == label {
			return j, true
		}
	}
	return Job{}, false
}
