package ballot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// LegacyBallot is the old (admin, guild)-keyed ballot row. Nothing writes to
// this table any more; MigrateLegacy drains it.
type LegacyBallot struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	AdminUserID string `gorm:"size:64;index"`
	GuildID     string `gorm:"size:64;index"`
	VoterID     string `gorm:"size:64"`
	Support     bool
	CreatedAt   time.Time
}

func (LegacyBallot) TableName() string { return "reelection_votes" }

// MigrationReport summarises a legacy drain.
type MigrationReport struct {
	Migrated  int
	Duplicate int
	Orphaned  int
}

// MigrateLegacy re-keys legacy ballots onto the ongoing proceeding of their
// administrator and deletes the legacy rows. Rows with no ongoing proceeding
// are dropped as orphans.
func MigrateLegacy(ctx context.Context, db *gorm.DB) (MigrationReport, error) {
	var report MigrationReport
	if !db.Migrator().HasTable(&LegacyBallot{}) {
		return report, nil
	}

	var rows []LegacyBallot
	if err := db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return report, fmt.Errorf("read legacy ballots: %w", err)
	}

	for _, row := range rows {
		kind, id, ok, err := ongoingProceeding(ctx, db, row.GuildID, row.AdminUserID)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Orphaned++
		} else {
			err := Cast(ctx, db, kind, id, row.GuildID, row.AdminUserID, row.VoterID, row.Support, row.CreatedAt)
			switch {
			case err == nil:
				report.Migrated++
			case errors.Is(err, gov.ErrAlreadyVoted):
				report.Duplicate++
			default:
				return report, err
			}
		}
		if err := db.WithContext(ctx).Delete(&LegacyBallot{}, row.ID).Error; err != nil {
			return report, fmt.Errorf("delete legacy ballot %d: %w", row.ID, err)
		}
	}

	if len(rows) > 0 {
		log.Printf("ballot: legacy migration: %d migrated, %d duplicate, %d orphaned",
			report.Migrated, report.Duplicate, report.Orphaned)
	}
	return report, nil
}

// PurgeLegacy removes any remaining legacy ballots about an administrator.
func PurgeLegacy(ctx context.Context, db *gorm.DB, guildID, adminUserID string) (int64, error) {
	if !db.Migrator().HasTable(&LegacyBallot{}) {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("guild_id = ? AND admin_user_id = ?", guildID, adminUserID).
		Delete(&LegacyBallot{})
	return res.RowsAffected, res.Error
}

func ongoingProceeding(ctx context.Context, db *gorm.DB, guildID, adminUserID string) (gov.ProceedingKind, uint64, bool, error) {
	session, err := records.OngoingSession(ctx, db, guildID, adminUserID)
	if err != nil {
		return "", 0, false, err
	}
	if session != nil {
		return gov.KindReelection, session.ID, true, nil
	}
	record, err := records.OngoingImpeachment(ctx, db, guildID, adminUserID)
	if err != nil {
		return "", 0, false, err
	}
	if record != nil {
		return gov.KindImpeachment, record.ID, true, nil
	}
	return "", 0, false, nil
}
