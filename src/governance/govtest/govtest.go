// Package govtest provides an in-memory database and collaborator fakes for
// governance tests.
package govtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB returns a migrated private in-memory database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := data.ConnectSQLite("")
	require.NoError(t, err)
	require.NoError(t, data.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close() //nolint:errcheck
		}
	})
	return db
}

// ErrInjected is the error FailUpdates injects.
var ErrInjected = errors.New("injected update failure")

// FailUpdates makes every UPDATE on table fail with ErrInjected until the
// returned switch is cleared.
func FailUpdates(t *testing.T, db *gorm.DB, table string) *atomic.Bool {
	t.Helper()
	on := new(atomic.Bool)
	on.Store(true)
	err := db.Callback().Update().Before("gorm:update").Register("govtest:fail_"+table, func(tx *gorm.DB) {
		if on.Load() && tx.Statement.Table == table {
			tx.AddError(ErrInjected)
		}
	})
	require.NoError(t, err)
	return on
}

// HookProfiles runs Before ahead of every lookup, letting a test change
// state between a caller's checks and its writes.
type HookProfiles struct {
	gov.ProfileStore
	Before func()
}

func (h *HookProfiles) GetProfile(ctx context.Context, guildID, userID string) (*gov.Profile, error) {
	if h.Before != nil {
		h.Before()
	}
	return h.ProfileStore.GetProfile(ctx, guildID, userID)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Func adapts the clock to gov.Clock.
func (c *Clock) Func() gov.Clock { return c.Now }

// Gateway records privilege calls and can be told to fail.
type Gateway struct {
	mu       sync.Mutex
	admins   map[string]map[string]bool
	Members  int
	FailWith error
	Grants   []string
	Revokes  []string
}

var _ gov.PrivilegeGateway = (*Gateway)(nil)

func NewGateway(members int) *Gateway {
	return &Gateway{admins: map[string]map[string]bool{}, Members: members}
}

func (g *Gateway) Grant(_ context.Context, guildID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Grants = append(g.Grants, guildID+":"+userID)
	if g.FailWith != nil {
		return g.FailWith
	}
	if g.admins[guildID] == nil {
		g.admins[guildID] = map[string]bool{}
	}
	g.admins[guildID][userID] = true
	return nil
}

func (g *Gateway) Revoke(_ context.Context, guildID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Revokes = append(g.Revokes, guildID+":"+userID)
	if g.FailWith != nil {
		return g.FailWith
	}
	delete(g.admins[guildID], userID)
	return nil
}

func (g *Gateway) ListAdmins(_ context.Context, guildID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return nil, g.FailWith
	}
	var out []string
	for u := range g.admins[guildID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (g *Gateway) MembershipCount(_ context.Context, _ string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return 0, g.FailWith
	}
	return g.Members, nil
}

// SetPrivileged marks a user as privileged without going through Grant.
func (g *Gateway) SetPrivileged(guildID, userID string, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.admins[guildID] == nil {
		g.admins[guildID] = map[string]bool{}
	}
	if on {
		g.admins[guildID][userID] = true
	} else {
		delete(g.admins[guildID], userID)
	}
}

// RevokeCount returns how many revokes targeted guild:user.
func (g *Gateway) RevokeCount(guildID, userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.Revokes {
		if r == guildID+":"+userID {
			n++
		}
	}
	return n
}

// Notifier collects announcements.
type Notifier struct {
	mu       sync.Mutex
	Messages []string
	FailWith error
}

var _ gov.Notifier = (*Notifier)(nil)

func (n *Notifier) Send(_ context.Context, guildID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, guildID+"|"+text)
	return n.FailWith
}

// Contains reports whether any message contains substr.
func (n *Notifier) Contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.Messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// Profiles is an in-memory profile store.
type Profiles struct {
	mu   sync.Mutex
	rows map[string]gov.Profile
}

var _ gov.ProfileStore = (*Profiles)(nil)

func NewProfiles() *Profiles {
	return &Profiles{rows: map[string]gov.Profile{}}
}

// Put stores a profile.
func (p *Profiles) Put(guildID, userID, cohort string, activity, reputation int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows[guildID+":"+userID] = gov.Profile{
		UserID: userID, GuildID: guildID, Cohort: cohort,
		ActivityScore: activity, ReputationScore: reputation,
	}
}

func (p *Profiles) GetProfile(_ context.Context, guildID, userID string) (*gov.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	row, ok := p.rows[guildID+":"+userID]
	if !ok {
		return nil, gov.ErrNoProfile
	}
	return &row, nil
}

// Members registers n voters named prefix1..prefixN with passing scores.
func (p *Profiles) Members(guildID, prefix, cohort string, n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s%d", prefix, i)
		p.Put(guildID, id, cohort, 100, 100)
		ids = append(ids, id)
	}
	return ids
}

// ErrGateway is a canned gateway failure.
var ErrGateway = errors.New("gateway unavailable")
