// Package ballot stores support/oppose ballots for reelection sessions and
// impeachment records in one session-scoped table.
package ballot

import (
	"context"
	"fmt"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// Tally is the running count of a proceeding.
type Tally struct {
	Support int
	Oppose  int
}

// Total is Support+Oppose.
func (t Tally) Total() int { return t.Support + t.Oppose }

// Cast records one ballot. A second ballot by the same voter on the same
// proceeding is rejected by the unique index and reported as ErrAlreadyVoted.
func Cast(ctx context.Context, db *gorm.DB, kind gov.ProceedingKind, proceedingID uint64, guildID, adminUserID, voterID string, support bool, at time.Time) error {
	row := gov.ProceedingBallot{
		Kind:         kind,
		ProceedingID: proceedingID,
		VoterID:      voterID,
		GuildID:      guildID,
		AdminUserID:  adminUserID,
		Support:      support,
		CastAt:       at,
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		if data.IsUniqueViolation(err) {
			return gov.ErrAlreadyVoted
		}
		return fmt.Errorf("cast %s ballot: %w", kind, err)
	}
	return nil
}

// Count tallies a proceeding.
func Count(ctx context.Context, db *gorm.DB, kind gov.ProceedingKind, proceedingID uint64) (Tally, error) {
	type agg struct {
		Support bool
		Count   int
	}
	var rows []agg
	err := db.WithContext(ctx).Model(&gov.ProceedingBallot{}).
		Select("support, count(*) as count").
		Where("kind = ? AND proceeding_id = ?", kind, proceedingID).
		Group("support").
		Scan(&rows).Error
	if err != nil {
		return Tally{}, fmt.Errorf("count %s ballots: %w", kind, err)
	}

	var t Tally
	for _, r := range rows {
		if r.Support {
			t.Support = r.Count
		} else {
			t.Oppose = r.Count
		}
	}
	return t, nil
}

// HasVoted reports whether voterID already has a ballot on the proceeding.
func HasVoted(ctx context.Context, db *gorm.DB, kind gov.ProceedingKind, proceedingID uint64, voterID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&gov.ProceedingBallot{}).
		Where("kind = ? AND proceeding_id = ? AND voter_id = ?", kind, proceedingID, voterID).
		Count(&n).Error
	return n > 0, err
}

// Purge deletes every ballot of the given proceedings.
func Purge(ctx context.Context, db *gorm.DB, kind gov.ProceedingKind, proceedingIDs []uint64) (int64, error) {
	if len(proceedingIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("kind = ? AND proceeding_id IN ?", kind, proceedingIDs).
		Delete(&gov.ProceedingBallot{})
	return res.RowsAffected, res.Error
}
