// Package power is the only writer of administrator state and the only caller
// of the privilege gateway.
package power

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/ballot"
	"github.com/stake-plus/guildgov/src/governance/notify"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// Options tune an Executor.
type Options struct {
	MaxAdministrators int
	Announcer         *notify.Announcer
	Now               gov.Clock
}

// Executor seats and unseats administrators.
type Executor struct {
	db        *gorm.DB
	gateway   gov.PrivilegeGateway
	announcer *notify.Announcer
	maxAdmins int
	now       gov.Clock
}

func NewExecutor(db *gorm.DB, gateway gov.PrivilegeGateway, opts Options) *Executor {
	return &Executor{
		db:        db,
		gateway:   gateway,
		announcer: opts.Announcer,
		maxAdmins: opts.MaxAdministrators,
		now:       opts.Now,
	}
}

// Appoint seats userID for cohort. It is a no-op returning the existing row
// when the user already holds an active seat in the guild. The privilege
// grant is requested after the row commits; its failure is logged and the
// row stays.
func (e *Executor) Appoint(ctx context.Context, guildID, userID, cohort string, electionID *uint64) (*gov.Administrator, bool, error) {
	var admin gov.Administrator
	created := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("guild_id = ? AND user_id = ? AND active = ?", guildID, userID, true).First(&admin).Error
		if err == nil {
			return nil
		}
		if !data.IsNotFound(err) {
			return err
		}

		var seatHolders int64
		if err := tx.Model(&gov.Administrator{}).
			Where("guild_id = ? AND cohort = ? AND active = ?", guildID, cohort, true).
			Count(&seatHolders).Error; err != nil {
			return err
		}
		if seatHolders > 0 {
			return gov.ErrSeatTaken
		}

		if e.maxAdmins > 0 {
			var active int64
			if err := tx.Model(&gov.Administrator{}).
				Where("guild_id = ? AND active = ?", guildID, true).
				Count(&active).Error; err != nil {
				return err
			}
			if int(active) >= e.maxAdmins {
				return gov.ErrSeatCeiling
			}
		}

		admin = gov.Administrator{
			GuildID:     guildID,
			UserID:      userID,
			Cohort:      cohort,
			ElectionID:  electionID,
			AppointedAt: e.now.Now(),
			Active:      true,
			SeatKey:     gov.Key(guildID, cohort),
			MemberKey:   gov.Key(guildID, userID),
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if data.IsUniqueViolation(err) {
			// lost a race: either the same member was seated concurrently
			// (idempotent) or someone else took the cohort seat
			existing, lookupErr := e.activeSeat(ctx, guildID, userID)
			if lookupErr == nil {
				return existing, false, nil
			}
			return nil, false, gov.ErrSeatTaken
		}
		if errors.Is(err, gov.ErrConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("appoint %s in guild %s: %w", userID, guildID, err)
	}

	if !created {
		return &admin, false, nil
	}

	log.Printf("power: appointed %s as administrator of cohort %s in guild %s", userID, cohort, guildID)
	e.requestGrant(ctx, guildID, userID)
	e.announcer.Announce(ctx, guildID, notify.AdminAppointed,
		fmt.Sprintf("<@%s> is now the administrator for cohort %s.", userID, cohort),
		map[string]interface{}{"user": userID, "cohort": cohort})
	return &admin, true, nil
}

// Remove deactivates the user's seat, stamps its term end, cancels any other
// ongoing proceeding against them, purges outstanding ballots about them and
// requests a privilege revoke.
func (e *Executor) Remove(ctx context.Context, guildID, userID string) (*gov.Administrator, error) {
	return e.RemoveWith(ctx, guildID, userID, nil)
}

// RemoveWith is Remove with within run first in the same transaction, so a
// proceeding's verdict and the deactivation commit or roll back together. An
// error from within aborts both. When the user holds no active seat, within
// still commits and ErrNotAdministrator is returned.
func (e *Executor) RemoveWith(ctx context.Context, guildID, userID string, within func(tx *gorm.DB) error) (*gov.Administrator, error) {
	var admin gov.Administrator
	now := e.now.Now()
	unseated := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		err := tx.Where("guild_id = ? AND user_id = ? AND active = ?", guildID, userID, true).First(&admin).Error
		if data.IsNotFound(err) {
			unseated = true
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&gov.Administrator{}).Where("id = ?", admin.ID).Updates(map[string]interface{}{
			"active":       false,
			"term_ends_at": now,
			"seat_key":     nil,
			"member_key":   nil,
		}).Error; err != nil {
			return err
		}
		admin.Active = false
		admin.TermEndsAt = &now
		admin.SeatKey = nil
		admin.MemberKey = nil

		return e.purgeProceedings(ctx, tx, guildID, userID, now)
	})
	if err != nil {
		if errors.Is(err, gov.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("remove %s in guild %s: %w", userID, guildID, err)
	}
	if unseated {
		return nil, gov.ErrNotAdministrator
	}

	log.Printf("power: removed administrator %s in guild %s", userID, guildID)
	e.requestRevoke(ctx, guildID, userID)
	e.announcer.Announce(ctx, guildID, notify.AdminRemoved,
		fmt.Sprintf("<@%s> is no longer an administrator.", userID),
		map[string]interface{}{"user": userID, "cohort": admin.Cohort})
	return &admin, nil
}

func (e *Executor) purgeProceedings(ctx context.Context, tx *gorm.DB, guildID, userID string, now time.Time) error {
	var sessionIDs []uint64
	if err := tx.Model(&gov.ReelectionSession{}).
		Where("guild_id = ? AND admin_user_id = ? AND status = ?", guildID, userID, gov.SessionOngoing).
		Pluck("id", &sessionIDs).Error; err != nil {
		return err
	}
	if len(sessionIDs) > 0 {
		if err := tx.Model(&gov.ReelectionSession{}).Where("id IN ?", sessionIDs).Updates(map[string]interface{}{
			"status":      gov.SessionCancelled,
			"ended_at":    now,
			"ongoing_key": nil,
		}).Error; err != nil {
			return err
		}
	}

	var recordIDs []uint64
	if err := tx.Model(&gov.ImpeachmentRecord{}).
		Where("guild_id = ? AND admin_user_id = ? AND status = ?", guildID, userID, gov.ImpeachmentOngoing).
		Pluck("id", &recordIDs).Error; err != nil {
		return err
	}
	if len(recordIDs) > 0 {
		if err := tx.Model(&gov.ImpeachmentRecord{}).Where("id IN ?", recordIDs).Updates(map[string]interface{}{
			"status":      gov.ImpeachmentCancelled,
			"ended_at":    now,
			"ongoing_key": nil,
		}).Error; err != nil {
			return err
		}
	}

	purged, err := ballot.Purge(ctx, tx, gov.KindReelection, sessionIDs)
	if err != nil {
		return err
	}
	n, err := ballot.Purge(ctx, tx, gov.KindImpeachment, recordIDs)
	if err != nil {
		return err
	}
	purged += n
	n, err = ballot.PurgeLegacy(ctx, tx, guildID, userID)
	if err != nil {
		return err
	}
	purged += n

	if purged > 0 || len(sessionIDs)+len(recordIDs) > 0 {
		log.Printf("power: guild %s admin %s: cancelled %d proceedings, purged %d ballots",
			guildID, userID, len(sessionIDs)+len(recordIDs), purged)
	}
	return nil
}

// ActiveAdministrators lists the sitting administrators of a guild by cohort.
func (e *Executor) ActiveAdministrators(ctx context.Context, guildID string) ([]gov.Administrator, error) {
	var admins []gov.Administrator
	err := e.db.WithContext(ctx).
		Where("guild_id = ? AND active = ?", guildID, true).
		Order("cohort, appointed_at").
		Find(&admins).Error
	return admins, err
}

// ActiveAdministrator returns the user's active seat or ErrNotAdministrator.
func (e *Executor) ActiveAdministrator(ctx context.Context, guildID, userID string) (*gov.Administrator, error) {
	return e.activeSeat(ctx, guildID, userID)
}

// CountActive returns the number of active seats in a guild.
func (e *Executor) CountActive(ctx context.Context, guildID string) (int, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&gov.Administrator{}).
		Where("guild_id = ? AND active = ?", guildID, true).
		Count(&n).Error
	return int(n), err
}

// MaxAdministrators is the configured ceiling (0 means unbounded).
func (e *Executor) MaxAdministrators() int { return e.maxAdmins }

func (e *Executor) activeSeat(ctx context.Context, guildID, userID string) (*gov.Administrator, error) {
	var admin gov.Administrator
	err := e.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ? AND active = ?", guildID, userID, true).
		First(&admin).Error
	if data.IsNotFound(err) {
		return nil, gov.ErrNotAdministrator
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (e *Executor) requestGrant(ctx context.Context, guildID, userID string) {
	if e.gateway == nil {
		return
	}
	if err := e.gateway.Grant(ctx, guildID, userID); err != nil {
		log.Printf("power: %v", &gov.ExternalError{Op: "grant", GuildID: guildID, UserID: userID, Err: err})
	}
}

func (e *Executor) requestRevoke(ctx context.Context, guildID, userID string) {
	if e.gateway == nil {
		return
	}
	if err := e.gateway.Revoke(ctx, guildID, userID); err != nil {
		log.Printf("power: %v", &gov.ExternalError{Op: "revoke", GuildID: guildID, UserID: userID, Err: err})
	}
}
