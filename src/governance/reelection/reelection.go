// Package reelection runs referenda on whether a sitting administrator keeps
// their seat.
package reelection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/ballot"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/governance/power"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stake-plus/guildgov/src/shared/sanitize"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxReason = 500

// Options tune an Engine.
type Options struct {
	Quorum    int
	MinTenure time.Duration
	MaxAge    time.Duration
	Announcer *notify.Announcer
	Now       gov.Clock
}

// Engine opens, votes on and resolves reelection sessions.
type Engine struct {
	db        *gorm.DB
	profiles  gov.ProfileStore
	executor  *power.Executor
	announcer *notify.Announcer
	opts      Options
}

func New(db *gorm.DB, profiles gov.ProfileStore, exec *power.Executor, opts Options) *Engine {
	if opts.Quorum < 1 {
		opts.Quorum = 1
	}
	return &Engine{
		db:        db,
		profiles:  profiles,
		executor:  exec,
		announcer: opts.Announcer,
		opts:      opts,
	}
}

// Outcome is a session together with its current count.
type Outcome struct {
	Session *gov.ReelectionSession
	Tally   ballot.Tally
}

// Resolved reports whether the session has left the ongoing state.
func (o *Outcome) Resolved() bool { return o.Session.Status != gov.SessionOngoing }

// CreateSession opens a session on adminUserID. initiatorID is nil for
// automatically triggered sessions.
func (e *Engine) CreateSession(ctx context.Context, guildID, adminUserID string, initiatorID *string, autoTriggered bool, reason string) (*gov.ReelectionSession, error) {
	if _, err := e.executor.ActiveAdministrator(ctx, guildID, adminUserID); err != nil {
		return nil, err
	}
	if s, err := records.OngoingSession(ctx, e.db, guildID, adminUserID); err != nil {
		return nil, err
	} else if s != nil {
		return nil, gov.Conflict(gov.ErrProceedingOngoing.Code, "reelection session #%d on <@%s> is already ongoing", s.ID, adminUserID)
	}
	if r, err := records.OngoingImpeachment(ctx, e.db, guildID, adminUserID); err != nil {
		return nil, err
	} else if r != nil {
		return nil, gov.Conflict(gov.ErrProceedingOngoing.Code, "impeachment #%d against <@%s> is ongoing", r.ID, adminUserID)
	}

	s := gov.ReelectionSession{
		GuildID:       guildID,
		AdminUserID:   adminUserID,
		InitiatorID:   initiatorID,
		AutoTriggered: autoTriggered,
		Status:        gov.SessionOngoing,
		RequiredVotes: e.opts.Quorum,
		Reason:        sanitize.Text(reason, maxReason),
		StartedAt:     e.opts.Now.Now(),
		OngoingKey:    gov.Key(guildID, adminUserID),
	}
	if err := e.db.WithContext(ctx).Create(&s).Error; err != nil {
		if data.IsUniqueViolation(err) {
			return nil, gov.ErrProceedingOngoing
		}
		return nil, fmt.Errorf("open reelection session: %w", err)
	}

	log.Printf("reelection: guild %s: session #%d opened on %s (auto=%t)", guildID, s.ID, adminUserID, autoTriggered)
	e.announcer.Announce(ctx, guildID, notify.SessionOpened,
		fmt.Sprintf("Reelection session #%d on <@%s> is open. %d ballots are needed; use /support-reelection or /oppose-reelection.",
			s.ID, adminUserID, s.RequiredVotes),
		map[string]interface{}{"session": s.ID, "admin": adminUserID, "auto": autoTriggered})
	return &s, nil
}

// Vote records a ballot and evaluates the session.
func (e *Engine) Vote(ctx context.Context, sessionID uint64, voterID string, support bool) (*Outcome, error) {
	s, err := records.Session(ctx, e.db, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != gov.SessionOngoing {
		return nil, gov.Validation(gov.ErrNotOngoing.Code, "reelection session #%d is %s", s.ID, s.Status)
	}
	if _, err := e.profiles.GetProfile(ctx, s.GuildID, voterID); err != nil {
		return nil, err
	}

	// the ballot only lands while the locked session row is still ongoing
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur gov.ReelectionSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, sessionID).Error; err != nil {
			return err
		}
		if cur.Status != gov.SessionOngoing {
			return gov.Validation(gov.ErrNotOngoing.Code, "reelection session #%d is %s", cur.ID, cur.Status)
		}
		return ballot.Cast(ctx, tx, gov.KindReelection, cur.ID, cur.GuildID, cur.AdminUserID, voterID, support, e.opts.Now.Now())
	})
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, sessionID)
}

// Evaluate resolves the session once its quorum is met: strictly more
// support than opposition keeps the administrator, anything else removes
// them. Below quorum nothing changes.
func (e *Engine) Evaluate(ctx context.Context, sessionID uint64) (*Outcome, error) {
	s, err := records.Session(ctx, e.db, sessionID)
	if err != nil {
		return nil, err
	}
	t, err := ballot.Count(ctx, e.db, gov.KindReelection, s.ID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Session: s, Tally: t}
	if s.Status != gov.SessionOngoing || t.Total() < s.RequiredVotes {
		return out, nil
	}

	outcome := gov.OutcomeRemoved
	if t.Support > t.Oppose {
		outcome = gov.OutcomeReelected
	}
	var won bool
	if outcome == gov.OutcomeRemoved {
		won, err = e.resolveRemoval(ctx, s)
	} else {
		won, err = e.finish(ctx, s, gov.SessionCompleted, outcome)
	}
	if err != nil || !won {
		return out, err
	}

	log.Printf("reelection: guild %s: session #%d resolved %s (%d for, %d against)",
		s.GuildID, s.ID, outcome, t.Support, t.Oppose)
	e.announcer.Announce(ctx, s.GuildID, notify.SessionResolved,
		fmt.Sprintf("Reelection session #%d on <@%s> closed: %s (%d for, %d against).",
			s.ID, s.AdminUserID, outcome, t.Support, t.Oppose),
		map[string]interface{}{"session": s.ID, "admin": s.AdminUserID, "outcome": string(outcome)})
	return out, nil
}

// Expire cancels the session when it has been open longer than maxAge,
// whatever its count. It reports whether the session was expired.
func (e *Engine) Expire(ctx context.Context, sessionID uint64, maxAge time.Duration) (bool, error) {
	s, err := records.Session(ctx, e.db, sessionID)
	if err != nil {
		return false, err
	}
	if s.Status != gov.SessionOngoing || e.opts.Now.Now().Sub(s.StartedAt) <= maxAge {
		return false, nil
	}
	won, err := e.finish(ctx, s, gov.SessionCancelled, gov.OutcomeExpired)
	if err != nil || !won {
		return false, err
	}
	log.Printf("reelection: guild %s: session #%d on %s expired", s.GuildID, s.ID, s.AdminUserID)
	e.announcer.Announce(ctx, s.GuildID, notify.SessionResolved,
		fmt.Sprintf("Reelection session #%d on <@%s> expired without reaching quorum.", s.ID, s.AdminUserID),
		map[string]interface{}{"session": s.ID, "admin": s.AdminUserID, "outcome": string(gov.OutcomeExpired)})
	return true, nil
}

// ExpireStale expires every ongoing session in the guild older than the
// configured maximum age.
func (e *Engine) ExpireStale(ctx context.Context, guildID string) (int, error) {
	var ids []uint64
	if err := e.db.WithContext(ctx).Model(&gov.ReelectionSession{}).
		Where("guild_id = ? AND status = ? AND started_at < ?", guildID, gov.SessionOngoing, e.opts.Now.Now().Add(-e.opts.MaxAge)).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		ok, err := e.Expire(ctx, id, e.opts.MaxAge)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// Tally reports a session's current count.
func (e *Engine) Tally(ctx context.Context, sessionID uint64) (*Outcome, error) {
	s, err := records.Session(ctx, e.db, sessionID)
	if err != nil {
		return nil, err
	}
	t, err := ballot.Count(ctx, e.db, gov.KindReelection, s.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Session: s, Tally: t}, nil
}

// Ongoing returns the ongoing session on an administrator.
func (e *Engine) Ongoing(ctx context.Context, guildID, adminUserID string) (*gov.ReelectionSession, error) {
	s, err := records.OngoingSession(ctx, e.db, guildID, adminUserID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("no ongoing reelection session on %s: %w", adminUserID, gov.ErrNotFound)
	}
	return s, nil
}

var errSessionClosed = errors.New("session already closed")

// resolveRemoval completes the session as removed and deactivates the
// administrator in one transaction.
func (e *Engine) resolveRemoval(ctx context.Context, s *gov.ReelectionSession) (bool, error) {
	now := e.opts.Now.Now()
	_, err := e.executor.RemoveWith(ctx, s.GuildID, s.AdminUserID, func(tx *gorm.DB) error {
		won, err := e.close(tx, s.ID, gov.SessionCompleted, gov.OutcomeRemoved, now)
		if err == nil && !won {
			return errSessionClosed
		}
		return err
	})
	switch {
	case errors.Is(err, errSessionClosed):
		return false, nil
	case err != nil && !errors.Is(err, gov.ErrNotAdministrator):
		return false, err
	}
	s.Status = gov.SessionCompleted
	s.Outcome = gov.OutcomeRemoved
	s.EndedAt = &now
	s.OngoingKey = nil
	return true, nil
}

// finish moves an ongoing session to a terminal state. Only one caller wins
// the transition; the others get false.
func (e *Engine) finish(ctx context.Context, s *gov.ReelectionSession, status gov.SessionStatus, outcome gov.SessionOutcome) (bool, error) {
	now := e.opts.Now.Now()
	won, err := e.close(e.db.WithContext(ctx), s.ID, status, outcome, now)
	if err != nil || !won {
		return false, err
	}
	s.Status = status
	s.Outcome = outcome
	s.EndedAt = &now
	s.OngoingKey = nil
	return true, nil
}

func (e *Engine) close(db *gorm.DB, sessionID uint64, status gov.SessionStatus, outcome gov.SessionOutcome, now time.Time) (bool, error) {
	res := db.Model(&gov.ReelectionSession{}).
		Where("id = ? AND status = ?", sessionID, gov.SessionOngoing).
		Updates(map[string]interface{}{
			"status":      status,
			"outcome":     outcome,
			"ended_at":    now,
			"ongoing_key": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("close session #%d: %w", sessionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
