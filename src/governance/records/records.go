// Package records holds the lookups shared by the governance engines.
package records

import (
	"context"
	"fmt"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// Election loads an election by ID.
func Election(ctx context.Context, db *gorm.DB, id uint64) (*gov.Election, error) {
	var e gov.Election
	if err := db.WithContext(ctx).First(&e, id).Error; err != nil {
		if data.IsNotFound(err) {
			return nil, fmt.Errorf("election %d: %w", id, gov.ErrNotFound)
		}
		return nil, fmt.Errorf("load election %d: %w", id, err)
	}
	return &e, nil
}

// ActiveElection returns the guild's non-terminal election, or nil.
func ActiveElection(ctx context.Context, db *gorm.DB, guildID string) (*gov.Election, error) {
	var e gov.Election
	err := db.WithContext(ctx).
		Where("guild_id = ? AND status IN ?", guildID, gov.NonTerminalElectionStatuses).
		Order("id DESC").
		First(&e).Error
	if data.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active election for guild %s: %w", guildID, err)
	}
	return &e, nil
}

// LatestElection returns the guild's most recent election of any status, or nil.
func LatestElection(ctx context.Context, db *gorm.DB, guildID string) (*gov.Election, error) {
	var e gov.Election
	err := db.WithContext(ctx).Where("guild_id = ?", guildID).Order("id DESC").First(&e).Error
	if data.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest election for guild %s: %w", guildID, err)
	}
	return &e, nil
}

// Session loads a reelection session by ID.
func Session(ctx context.Context, db *gorm.DB, id uint64) (*gov.ReelectionSession, error) {
	var s gov.ReelectionSession
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		if data.IsNotFound(err) {
			return nil, fmt.Errorf("reelection session %d: %w", id, gov.ErrNotFound)
		}
		return nil, fmt.Errorf("load reelection session %d: %w", id, err)
	}
	return &s, nil
}

// Impeachment loads an impeachment record by ID.
func Impeachment(ctx context.Context, db *gorm.DB, id uint64) (*gov.ImpeachmentRecord, error) {
	var r gov.ImpeachmentRecord
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		if data.IsNotFound(err) {
			return nil, fmt.Errorf("impeachment %d: %w", id, gov.ErrNotFound)
		}
		return nil, fmt.Errorf("load impeachment %d: %w", id, err)
	}
	return &r, nil
}

// OngoingSession returns the ongoing reelection session for an
// administrator, or nil.
func OngoingSession(ctx context.Context, db *gorm.DB, guildID, adminUserID string) (*gov.ReelectionSession, error) {
	var s gov.ReelectionSession
	err := db.WithContext(ctx).
		Where("guild_id = ? AND admin_user_id = ? AND status = ?", guildID, adminUserID, gov.SessionOngoing).
		First(&s).Error
	if data.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// OngoingImpeachment returns the ongoing impeachment of an administrator, or nil.
func OngoingImpeachment(ctx context.Context, db *gorm.DB, guildID, adminUserID string) (*gov.ImpeachmentRecord, error) {
	var r gov.ImpeachmentRecord
	err := db.WithContext(ctx).
		Where("guild_id = ? AND admin_user_id = ? AND status = ?", guildID, adminUserID, gov.ImpeachmentOngoing).
		First(&r).Error
	if data.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
