package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *govtest.Clock
	profiles *govtest.Profiles
	reg      *Registry
	election gov.Election
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       govtest.OpenDB(t),
		clock:    govtest.NewClock(),
		profiles: govtest.NewProfiles(),
	}
	f.reg = New(f.db, f.profiles, Options{
		MinActivityScore:   50,
		MinReputationScore: 40,
		AutoApprove:        true,
		Now:                f.clock.Func(),
	})
	active := "g1"
	f.election = gov.Election{
		GuildID:            "g1",
		Type:               gov.ElectionInitial,
		Status:             gov.ElectionRegistration,
		ActiveGuild:        &active,
		StartedAt:          f.clock.Now(),
		RegistrationEndsAt: f.clock.Now().Add(72 * time.Hour),
		VotingEndsAt:       f.clock.Now().Add(120 * time.Hour),
	}
	require.NoError(t, f.db.Create(&f.election).Error)
	return f
}

func (f *fixture) setStatus(t *testing.T, status gov.ElectionStatus) {
	t.Helper()
	require.NoError(t, f.db.Model(&gov.Election{}).Where("id = ?", f.election.ID).Update("status", status).Error)
}

func TestCodesFollowSubmissionOrderAndSurviveWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.Put("g1", "u1", "7", 90, 90)
	f.profiles.Put("g1", "u2", "Class 07", 90, 90)
	f.profiles.Put("g1", "u3", "七班", 90, 90)
	f.profiles.Put("g1", "u4", "seven", 90, 90)

	var codes []string
	for _, u := range []string{"u1", "u2", "u3"} {
		c, err := f.reg.Register(ctx, f.election.ID, u, "")
		require.NoError(t, err)
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"701", "702", "703"}, codes)

	require.NoError(t, f.reg.Withdraw(ctx, f.election.ID, "u2"))

	list, err := f.reg.List(ctx, f.election.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "701", list[0].Code)
	assert.Equal(t, "703", list[1].Code)

	next, err := f.reg.Register(ctx, f.election.ID, "u4", "")
	require.NoError(t, err)
	assert.Equal(t, "704", next.Code)
}

func TestCohortsNumberIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.Put("g1", "a", "3", 90, 90)
	f.profiles.Put("g1", "b", "12", 90, 90)
	f.profiles.Put("g1", "c", "3", 90, 90)

	for _, u := range []string{"a", "b", "c"} {
		_, err := f.reg.Register(ctx, f.election.ID, u, "")
		require.NoError(t, err)
	}
	list, err := f.reg.List(ctx, f.election.ID, true)
	require.NoError(t, err)
	var got []string
	for _, c := range list {
		got = append(got, c.Code)
	}
	assert.Equal(t, []string{"301", "302", "1201"}, got)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.Put("g1", "low", "7", 49, 90)
	f.profiles.Put("g1", "lowrep", "7", 90, 39)
	f.profiles.Put("g1", "nocohort", "blue team", 90, 90)
	f.profiles.Put("g1", "ok", "7", 50, 40)

	_, err := f.reg.Register(ctx, f.election.ID, "ghost", "")
	assert.ErrorIs(t, err, gov.ErrNoProfile)

	_, err = f.reg.Register(ctx, f.election.ID, "low", "")
	assert.ErrorIs(t, err, gov.ErrIneligible)
	_, err = f.reg.Register(ctx, f.election.ID, "lowrep", "")
	assert.ErrorIs(t, err, gov.ErrIneligible)

	_, err = f.reg.Register(ctx, f.election.ID, "nocohort", "")
	assert.ErrorIs(t, err, gov.ErrBadCohort)

	_, err = f.reg.Register(ctx, f.election.ID, "ok", "")
	require.NoError(t, err)
	_, err = f.reg.Register(ctx, f.election.ID, "ok", "")
	assert.ErrorIs(t, err, gov.ErrAlreadyRegistered)

	_, err = f.reg.Register(ctx, 999, "ok", "")
	assert.ErrorIs(t, err, gov.ErrNotFound)
}

func TestRegisterRespectsPhaseAndDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.Put("g1", "u1", "7", 90, 90)

	f.clock.Advance(73 * time.Hour)
	_, err := f.reg.Register(ctx, f.election.ID, "u1", "")
	assert.ErrorIs(t, err, gov.ErrDeadlinePassed)

	f.setStatus(t, gov.ElectionVoting)
	_, err = f.reg.Register(ctx, f.election.ID, "u1", "")
	assert.ErrorIs(t, err, gov.ErrWrongPhase)
}

func TestWithdrawOnlyDuringRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiles.Put("g1", "u1", "7", 90, 90)
	_, err := f.reg.Register(ctx, f.election.ID, "u1", "")
	require.NoError(t, err)

	err = f.reg.Withdraw(ctx, f.election.ID, "someone-else")
	assert.ErrorIs(t, err, gov.ErrNotFound)

	f.setStatus(t, gov.ElectionVoting)
	err = f.reg.Withdraw(ctx, f.election.ID, "u1")
	assert.ErrorIs(t, err, gov.ErrWrongPhase)
}

func TestManifestoIsSanitised(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put("g1", "u1", "7", 90, 90)

	c, err := f.reg.Register(context.Background(), f.election.ID, "u1",
		`  <script>alert(1)</script><b>Vote</b> for <a href="x">me</a>  `+strings.Repeat("x", 2000))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.Manifesto, "Vote for me"))
	assert.NotContains(t, c.Manifesto, "<")
	assert.Len(t, []rune(c.Manifesto), maxManifesto)
}

func TestApprovalGatesCodeLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reg.opts.AutoApprove = false
	f.profiles.Put("g1", "u1", "7", 90, 90)

	c, err := f.reg.Register(ctx, f.election.ID, "u1", "")
	require.NoError(t, err)
	assert.False(t, c.Approved)

	_, err = f.reg.FindByCode(ctx, f.election.ID, "701")
	assert.ErrorIs(t, err, gov.ErrUnknownCandidate)
	n, err := f.reg.CountApproved(ctx, f.election.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.reg.SetApproval(ctx, f.election.ID, "u1", true))
	found, err := f.reg.FindByCode(ctx, f.election.ID, " 701 ")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)
}

func TestConcurrentRegistrationsGetDistinctCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 6
	for i := 1; i <= n; i++ {
		f.profiles.Put("g1", fmt.Sprintf("u%d", i), "7", 90, 90)
	}

	var wg sync.WaitGroup
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.reg.Register(ctx, f.election.ID, fmt.Sprintf("u%d", i+1), "")
			if assert.NoError(t, err) {
				codes[i] = c.Code
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}
