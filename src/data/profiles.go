package data

import (
	"context"
	"fmt"

	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

// ProfileStore reads member_profiles. The engine never writes to it.
type ProfileStore struct {
	db *gorm.DB
}

var _ gov.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetProfile(ctx context.Context, guildID, userID string) (*gov.Profile, error) {
	var row gov.MemberProfile
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		First(&row).Error
	if IsNotFound(err) {
		return nil, gov.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s/%s: %w", guildID, userID, err)
	}
	return &gov.Profile{
		UserID:          row.UserID,
		GuildID:         row.GuildID,
		Cohort:          row.Cohort,
		ActivityScore:   row.ActivityScore,
		ReputationScore: row.ReputationScore,
	}, nil
}
