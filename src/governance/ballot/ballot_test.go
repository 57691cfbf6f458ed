package ballot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastAndCount(t *testing.T) {
	db := govtest.OpenDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, Cast(ctx, db, gov.KindReelection, 1, "g1", "a1", "v1", true, now))
	require.NoError(t, Cast(ctx, db, gov.KindReelection, 1, "g1", "a1", "v2", false, now))
	require.NoError(t, Cast(ctx, db, gov.KindReelection, 1, "g1", "a1", "v3", false, now))
	// same voter, other proceeding kind with the same numeric ID
	require.NoError(t, Cast(ctx, db, gov.KindImpeachment, 1, "g1", "a1", "v1", false, now))

	tally, err := Count(ctx, db, gov.KindReelection, 1)
	require.NoError(t, err)
	assert.Equal(t, Tally{Support: 1, Oppose: 2}, tally)
	assert.Equal(t, 3, tally.Total())

	voted, err := HasVoted(ctx, db, gov.KindImpeachment, 1, "v1")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestSecondBallotRejected(t *testing.T) {
	db := govtest.OpenDB(t)
	ctx := context.Background()

	require.NoError(t, Cast(ctx, db, gov.KindReelection, 9, "g1", "a1", "v1", true, time.Now()))
	err := Cast(ctx, db, gov.KindReelection, 9, "g1", "a1", "v1", false, time.Now())
	assert.ErrorIs(t, err, gov.ErrAlreadyVoted)
	assert.ErrorIs(t, err, gov.ErrConflict)
}

func TestConcurrentFirstBallotsStoreOne(t *testing.T) {
	db := govtest.OpenDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Cast(ctx, db, gov.KindImpeachment, 4, "g1", "a1", "v1", i%2 == 0, time.Now())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, gov.ErrAlreadyVoted)
		}
	}
	assert.Equal(t, 1, ok)
	tally, err := Count(ctx, db, gov.KindImpeachment, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Total())
}

func TestMigrateLegacy(t *testing.T) {
	db := govtest.OpenDB(t)
	ctx := context.Background()

	report, err := MigrateLegacy(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{}, report)

	session := gov.ReelectionSession{
		GuildID: "g1", AdminUserID: "a1", Status: gov.SessionOngoing,
		RequiredVotes: 3, OngoingKey: gov.Key("g1", "a1"),
	}
	require.NoError(t, db.Create(&session).Error)
	require.NoError(t, Cast(ctx, db, gov.KindReelection, session.ID, "g1", "a1", "v3", true, time.Now()))

	require.NoError(t, db.AutoMigrate(&LegacyBallot{}))
	for _, row := range []LegacyBallot{
		{AdminUserID: "a1", GuildID: "g1", VoterID: "v1", Support: true},
		{AdminUserID: "a1", GuildID: "g1", VoterID: "v2", Support: false},
		{AdminUserID: "a1", GuildID: "g1", VoterID: "v3", Support: false},
		{AdminUserID: "a2", GuildID: "g1", VoterID: "v1", Support: true},
	} {
		require.NoError(t, db.Create(&row).Error)
	}

	report, err = MigrateLegacy(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, MigrationReport{Migrated: 2, Duplicate: 1, Orphaned: 1}, report)

	tally, err := Count(ctx, db, gov.KindReelection, session.ID)
	require.NoError(t, err)
	assert.Equal(t, Tally{Support: 2, Oppose: 1}, tally)

	var left int64
	require.NoError(t, db.Model(&LegacyBallot{}).Count(&left).Error)
	assert.Zero(t, left)
}
