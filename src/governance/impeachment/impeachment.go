// Package impeachment runs member-initiated removal proceedings against
// sitting administrators.
package impeachment

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
	MinTenure     time.Duration
	Cooldown      time.Duration
	RateLimit     int
	RateWindow    time.Duration
	QuorumPercent int
	QuorumMin     int
	QuorumMax     int
	MaxAge        time.Duration
	Announcer     *notify.Announcer
	Now           gov.Clock
}

// Engine opens, votes on and resolves impeachment records.
type Engine struct {
	db        *gorm.DB
	profiles  gov.ProfileStore
	gateway   gov.PrivilegeGateway
	executor  *power.Executor
	announcer *notify.Announcer
	opts      Options
}

func New(db *gorm.DB, profiles gov.ProfileStore, gateway gov.PrivilegeGateway, exec *power.Executor, opts Options) *Engine {
	return &Engine{
		db:        db,
		profiles:  profiles,
		gateway:   gateway,
		executor:  exec,
		announcer: opts.Announcer,
		opts:      opts,
	}
}

// Outcome is a record together with its current count.
type Outcome struct {
	Record *gov.ImpeachmentRecord
	Tally  ballot.Tally
}

// Resolved reports whether the record has left the ongoing state.
func (o *Outcome) Resolved() bool { return o.Record.Status != gov.ImpeachmentOngoing }

// Quorum is percent of members rounded up, clamped to [min, max]. A max of
// zero leaves the upper bound open.
func Quorum(members, percent, min, max int) int {
	q := (members*percent + 99) / 100
	if q < min {
		q = min
	}
	if max > 0 && q > max {
		q = max
	}
	if q < 1 {
		q = 1
	}
	return q
}

// Open starts an impeachment of adminUserID on behalf of initiatorID.
func (e *Engine) Open(ctx context.Context, guildID, adminUserID, initiatorID, reason string) (*gov.ImpeachmentRecord, error) {
	now := e.opts.Now.Now()

	admin, err := e.executor.ActiveAdministrator(ctx, guildID, adminUserID)
	if err != nil {
		return nil, err
	}
	if _, err := e.profiles.GetProfile(ctx, guildID, initiatorID); err != nil {
		return nil, err
	}
	if served := now.Sub(admin.AppointedAt); served <= e.opts.MinTenure {
		return nil, gov.Validation(gov.ErrTenureTooShort.Code,
			"<@%s> has served %s; impeachment needs more than %s", adminUserID, served.Round(time.Hour), e.opts.MinTenure)
	}
	if s, err := records.OngoingSession(ctx, e.db, guildID, adminUserID); err != nil {
		return nil, err
	} else if s != nil {
		return nil, gov.Conflict(gov.ErrProceedingOngoing.Code, "reelection session #%d on <@%s> is ongoing", s.ID, adminUserID)
	}
	if r, err := records.OngoingImpeachment(ctx, e.db, guildID, adminUserID); err != nil {
		return nil, err
	} else if r != nil {
		return nil, gov.Conflict(gov.ErrProceedingOngoing.Code, "impeachment #%d against <@%s> is already ongoing", r.ID, adminUserID)
	}
	if err := e.checkCooldown(ctx, guildID, adminUserID, now); err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(ctx, guildID, initiatorID, now); err != nil {
		return nil, err
	}

	members, err := e.gateway.MembershipCount(ctx, guildID)
	if err != nil {
		// quorum falls back to the configured minimum
		log.Printf("impeachment: %v", &gov.ExternalError{Op: "membership count", GuildID: guildID, Err: err})
		members = 0
	}

	r := gov.ImpeachmentRecord{
		GuildID:       guildID,
		AdminUserID:   adminUserID,
		InitiatorID:   initiatorID,
		Status:        gov.ImpeachmentOngoing,
		RequiredVotes: Quorum(members, e.opts.QuorumPercent, e.opts.QuorumMin, e.opts.QuorumMax),
		Reason:        sanitize.Text(reason, maxReason),
		InitiatedAt:   now,
		OngoingKey:    gov.Key(guildID, adminUserID),
	}
	if err := e.db.WithContext(ctx).Create(&r).Error; err != nil {
		if data.IsUniqueViolation(err) {
			return nil, gov.ErrProceedingOngoing
		}
		return nil, fmt.Errorf("open impeachment: %w", err)
	}

	log.Printf("impeachment: guild %s: #%d against %s opened by %s, quorum %d of %d members",
		guildID, r.ID, adminUserID, initiatorID, r.RequiredVotes, members)
	e.announcer.Announce(ctx, guildID, notify.ImpeachmentOpened,
		fmt.Sprintf("<@%s> opened impeachment #%d against <@%s>: %s\n%d ballots are needed; use /support-reelection to keep or /oppose-reelection to remove.",
			initiatorID, r.ID, adminUserID, r.Reason, r.RequiredVotes),
		map[string]interface{}{"impeachment": r.ID, "admin": adminUserID, "initiator": initiatorID, "quorum": r.RequiredVotes})
	return &r, nil
}

func (e *Engine) checkCooldown(ctx context.Context, guildID, adminUserID string, now time.Time) error {
	if e.opts.Cooldown <= 0 {
		return nil
	}
	var last gov.ImpeachmentRecord
	err := e.db.WithContext(ctx).
		Where("guild_id = ? AND admin_user_id = ? AND status = ? AND ended_at > ?",
			guildID, adminUserID, gov.ImpeachmentFailed, now.Add(-e.opts.Cooldown)).
		Order("ended_at DESC").
		First(&last).Error
	if data.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return gov.Conflict(gov.ErrImpeachCooldown.Code,
		"impeachment #%d against <@%s> failed recently; try again after %s",
		last.ID, adminUserID, last.EndedAt.Add(e.opts.Cooldown).UTC().Format("2006-01-02 15:04 MST"))
}

func (e *Engine) checkRateLimit(ctx context.Context, guildID, initiatorID string, now time.Time) error {
	if e.opts.RateLimit <= 0 {
		return nil
	}
	var n int64
	if err := e.db.WithContext(ctx).Model(&gov.ImpeachmentRecord{}).
		Where("guild_id = ? AND initiator_id = ? AND initiated_at > ?", guildID, initiatorID, now.Add(-e.opts.RateWindow)).
		Count(&n).Error; err != nil {
		return err
	}
	if int(n) >= e.opts.RateLimit {
		return gov.Conflict(gov.ErrInitiatorRateLimit.Code,
			"you have opened %d impeachments in the last %s (limit %d)", n, e.opts.RateWindow, e.opts.RateLimit)
	}
	return nil
}

// Vote records a ballot and evaluates the record. Support keeps the
// administrator; opposition counts toward removal.
func (e *Engine) Vote(ctx context.Context, recordID uint64, voterID string, support bool) (*Outcome, error) {
	r, err := records.Impeachment(ctx, e.db, recordID)
	if err != nil {
		return nil, err
	}
	if r.Status != gov.ImpeachmentOngoing {
		return nil, gov.Validation(gov.ErrNotOngoing.Code, "impeachment #%d is %s", r.ID, r.Status)
	}
	if _, err := e.profiles.GetProfile(ctx, r.GuildID, voterID); err != nil {
		return nil, err
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur gov.ImpeachmentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, recordID).Error; err != nil {
			return err
		}
		if cur.Status != gov.ImpeachmentOngoing {
			return gov.Validation(gov.ErrNotOngoing.Code, "impeachment #%d is %s", cur.ID, cur.Status)
		}
		return ballot.Cast(ctx, tx, gov.KindImpeachment, cur.ID, cur.GuildID, cur.AdminUserID, voterID, support, e.opts.Now.Now())
	})
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, recordID)
}

// Evaluate refreshes the stored count and resolves the record at quorum:
// opposition at least equal to support removes the administrator, otherwise
// the impeachment fails and the cooldown starts.
func (e *Engine) Evaluate(ctx context.Context, recordID uint64) (*Outcome, error) {
	r, err := records.Impeachment(ctx, e.db, recordID)
	if err != nil {
		return nil, err
	}
	t, err := ballot.Count(ctx, e.db, gov.KindImpeachment, r.ID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Record: r, Tally: t}
	if r.Status != gov.ImpeachmentOngoing {
		return out, nil
	}

	if err := e.db.WithContext(ctx).Model(&gov.ImpeachmentRecord{}).
		Where("id = ? AND status = ?", r.ID, gov.ImpeachmentOngoing).
		Updates(map[string]interface{}{
			"support_votes": t.Support,
			"oppose_votes":  t.Oppose,
			"total_votes":   t.Total(),
		}).Error; err != nil {
		return nil, fmt.Errorf("impeachment #%d snapshot: %w", r.ID, err)
	}
	r.SupportVotes, r.OpposeVotes, r.TotalVotes = t.Support, t.Oppose, t.Total()

	if t.Total() < r.RequiredVotes {
		return out, nil
	}

	status := gov.ImpeachmentFailed
	if t.Oppose >= t.Support {
		status = gov.ImpeachmentSuccess
	}
	var won bool
	if status == gov.ImpeachmentSuccess {
		won, err = e.resolveRemoval(ctx, r)
	} else {
		won, err = e.finish(ctx, r, status)
	}
	if err != nil || !won {
		return out, err
	}

	log.Printf("impeachment: guild %s: #%d against %s resolved %s (%d keep, %d remove)",
		r.GuildID, r.ID, r.AdminUserID, status, t.Support, t.Oppose)
	verdict := "the administrator keeps their seat"
	if status == gov.ImpeachmentSuccess {
		verdict = "the administrator is removed"
	}
	e.announcer.Announce(ctx, r.GuildID, notify.ImpeachmentResolved,
		fmt.Sprintf("Impeachment #%d against <@%s> %s: %s (%d keep, %d remove).",
			r.ID, r.AdminUserID, status, verdict, t.Support, t.Oppose),
		map[string]interface{}{"impeachment": r.ID, "admin": r.AdminUserID, "status": string(status)})
	return out, nil
}

// Cancel withdraws an ongoing impeachment. Only its initiator or a
// moderator may do so.
func (e *Engine) Cancel(ctx context.Context, recordID uint64, actorID string, moderator bool) (*gov.ImpeachmentRecord, error) {
	r, err := records.Impeachment(ctx, e.db, recordID)
	if err != nil {
		return nil, err
	}
	if r.Status != gov.ImpeachmentOngoing {
		return nil, gov.Validation(gov.ErrNotOngoing.Code, "impeachment #%d is already %s", r.ID, r.Status)
	}
	if !moderator && actorID != r.InitiatorID {
		return nil, gov.Validation(gov.ErrNotPermitted.Code, "only the initiator or a moderator can cancel impeachment #%d", r.ID)
	}
	won, err := e.finish(ctx, r, gov.ImpeachmentCancelled)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, gov.ErrNotOngoing
	}
	log.Printf("impeachment: guild %s: #%d cancelled by %s", r.GuildID, r.ID, actorID)
	e.announcer.Announce(ctx, r.GuildID, notify.ImpeachmentResolved,
		fmt.Sprintf("Impeachment #%d against <@%s> was cancelled by <@%s>.", r.ID, r.AdminUserID, actorID),
		map[string]interface{}{"impeachment": r.ID, "admin": r.AdminUserID, "status": string(gov.ImpeachmentCancelled)})
	return r, nil
}

// Expire cancels the record when it has been open longer than maxAge.
func (e *Engine) Expire(ctx context.Context, recordID uint64, maxAge time.Duration) (bool, error) {
	r, err := records.Impeachment(ctx, e.db, recordID)
	if err != nil {
		return false, err
	}
	if r.Status != gov.ImpeachmentOngoing || e.opts.Now.Now().Sub(r.InitiatedAt) <= maxAge {
		return false, nil
	}
	won, err := e.finish(ctx, r, gov.ImpeachmentCancelled)
	if err != nil || !won {
		return false, err
	}
	log.Printf("impeachment: guild %s: #%d against %s expired", r.GuildID, r.ID, r.AdminUserID)
	e.announcer.Announce(ctx, r.GuildID, notify.ImpeachmentResolved,
		fmt.Sprintf("Impeachment #%d against <@%s> expired without reaching quorum.", r.ID, r.AdminUserID),
		map[string]interface{}{"impeachment": r.ID, "admin": r.AdminUserID, "status": "expired"})
	return true, nil
}

// ExpireStale expires every ongoing record in the guild older than the
// configured maximum age.
func (e *Engine) ExpireStale(ctx context.Context, guildID string) (int, error) {
	var ids []uint64
	if err := e.db.WithContext(ctx).Model(&gov.ImpeachmentRecord{}).
		Where("guild_id = ? AND status = ? AND initiated_at < ?", guildID, gov.ImpeachmentOngoing, e.opts.Now.Now().Add(-e.opts.MaxAge)).
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

// Tally reports a record's current count.
func (e *Engine) Tally(ctx context.Context, recordID uint64) (*Outcome, error) {
	r, err := records.Impeachment(ctx, e.db, recordID)
	if err != nil {
		return nil, err
	}
	t, err := ballot.Count(ctx, e.db, gov.KindImpeachment, r.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Record: r, Tally: t}, nil
}

// Ongoing returns the ongoing impeachment of an administrator.
func (e *Engine) Ongoing(ctx context.Context, guildID, adminUserID string) (*gov.ImpeachmentRecord, error) {
	r, err := records.OngoingImpeachment(ctx, e.db, guildID, adminUserID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("no ongoing impeachment of %s: %w", adminUserID, gov.ErrNotFound)
	}
	return r, nil
}

var errRecordClosed = errors.New("impeachment already closed")

// resolveRemoval marks the record successful and deactivates the
// administrator in one transaction.
func (e *Engine) resolveRemoval(ctx context.Context, r *gov.ImpeachmentRecord) (bool, error) {
	now := e.opts.Now.Now()
	_, err := e.executor.RemoveWith(ctx, r.GuildID, r.AdminUserID, func(tx *gorm.DB) error {
		won, err := e.close(tx, r.ID, gov.ImpeachmentSuccess, now)
		if err == nil && !won {
			return errRecordClosed
		}
		return err
	})
	switch {
	case errors.Is(err, errRecordClosed):
		return false, nil
	case err != nil && !errors.Is(err, gov.ErrNotAdministrator):
		return false, err
	}
	r.Status = gov.ImpeachmentSuccess
	r.EndedAt = &now
	r.OngoingKey = nil
	return true, nil
}

func (e *Engine) finish(ctx context.Context, r *gov.ImpeachmentRecord, status gov.ImpeachmentStatus) (bool, error) {
	now := e.opts.Now.Now()
	won, err := e.close(e.db.WithContext(ctx), r.ID, status, now)
	if err != nil || !won {
		return false, err
	}
	r.Status = status
	r.EndedAt = &now
	r.OngoingKey = nil
	return true, nil
}

func (e *Engine) close(db *gorm.DB, recordID uint64, status gov.ImpeachmentStatus, now time.Time) (bool, error) {
	res := db.Model(&gov.ImpeachmentRecord{}).
		Where("id = ? AND status = ?", recordID, gov.ImpeachmentOngoing).
		Updates(map[string]interface{}{
			"status":      status,
			"ended_at":    now,
			"ongoing_key": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("close impeachment #%d: %w", recordID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
