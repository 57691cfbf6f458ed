package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance"
	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock    *govtest.Clock
	profiles *govtest.Profiles
	notifier *govtest.Notifier
	svc      *governance.Service
	router   *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    govtest.NewClock(),
		profiles: govtest.NewProfiles(),
		notifier: &govtest.Notifier{},
	}
	f.svc = governance.NewService(config.GovernanceConfig{
		RegistrationPeriod:   72 * time.Hour,
		VotingPeriod:         48 * time.Hour,
		MaxAdministrators:    5,
		AutoApprove:          true,
		ReelectionQuorum:     3,
		ReelectionMinTenure:  30 * 24 * time.Hour,
		ReelectionMaxAge:     72 * time.Hour,
		ImpeachMinTenure:     7 * 24 * time.Hour,
		ImpeachCooldown:      7 * 24 * time.Hour,
		ImpeachRateLimit:     2,
		ImpeachRateWindow:    24 * time.Hour,
		ImpeachQuorumPercent: 10,
		ImpeachQuorumMin:     3,
		ImpeachQuorumMax:     30,
		ImpeachMaxAge:        72 * time.Hour,
	}, governance.Deps{
		DB:       govtest.OpenDB(t),
		Profiles: f.profiles,
		Gateway:  govtest.NewGateway(20),
		Notifier: f.notifier,
		Now:      f.clock.Func(),
	})
	f.router = NewRouter(f.svc)
	return f
}

func (f *fixture) run(t *testing.T, user string, level Level, name string, opts map[string]string) Reply {
	t.Helper()
	reply, err := f.router.Dispatch(context.Background(), Invocation{
		Guild: "g1", User: user, Level: level, Name: name, Options: opts,
	})
	require.NoError(t, err)
	return reply
}

func TestRouterCoversEveryCommand(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.router.Names(), 16)
	lvl, ok := f.router.Required(InitiateElection)
	require.True(t, ok)
	assert.Equal(t, LevelOwner, lvl)
	lvl, _ = f.router.Required(OpenImpeachment)
	assert.Equal(t, LevelTrusted, lvl)

	_, err := f.router.Dispatch(context.Background(), Invocation{Guild: "g1", Name: "nope"})
	assert.Error(t, err)
}

func TestTierGate(t *testing.T) {
	f := newFixture(t)
	reply := f.run(t, "u1", LevelModerator, InitiateElection, nil)
	assert.True(t, reply.Private)
	assert.Contains(t, reply.Text, "owner")

	st, err := f.svc.Elections.Status(context.Background(), "g1")
	require.NoError(t, err)
	assert.Nil(t, st.Election)
}

func TestElectionThroughCommands(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put("g1", "alice", "Class 3", 90, 90)
	f.profiles.Put("g1", "bob", "3", 90, 90)
	voters := f.profiles.Members("g1", "v", "4", 3)

	reply := f.run(t, "alice", LevelMember, RegisterCandidacy, nil)
	assert.Equal(t, errNoElection.Message, reply.Text)

	f.run(t, "owner", LevelOwner, InitiateElection, nil)
	reply = f.run(t, "alice", LevelMember, RegisterCandidacy, map[string]string{OptManifesto: "<b>cleaner</b> channels"})
	assert.Contains(t, reply.Text, "301")
	f.run(t, "bob", LevelMember, RegisterCandidacy, nil)

	reply = f.run(t, "alice", LevelMember, RegisterCandidacy, nil)
	assert.True(t, reply.Private)
	assert.Equal(t, gov.ErrAlreadyRegistered.Message, reply.Text)

	reply = f.run(t, "v1", LevelMember, ListCandidates, nil)
	assert.Contains(t, reply.Text, "301")
	assert.Contains(t, reply.Text, "302")
	assert.Contains(t, reply.Text, "cleaner channels")

	reply = f.run(t, "v1", LevelMember, CastVote, map[string]string{OptCode: "301"})
	assert.Contains(t, reply.Text, "not open")

	f.run(t, "mod", LevelModerator, BeginVotingPhase, nil)
	f.run(t, voters[0], LevelMember, CastVote, map[string]string{OptCode: "301", OptVisibility: "public"})
	f.run(t, voters[1], LevelMember, CastVote, map[string]string{OptCode: "301"})
	f.run(t, voters[2], LevelMember, CastVote, map[string]string{OptCode: "302"})
	assert.True(t, f.notifier.Contains("voted for candidate 301"))

	reply = f.run(t, voters[0], LevelMember, CastVote, map[string]string{OptCode: "302"})
	assert.Equal(t, gov.ErrAlreadyVoted.Message, reply.Text)

	reply = f.run(t, "v1", LevelMember, ElectionStatus, nil)
	assert.Contains(t, reply.Text, "Ballots: 3")

	reply = f.run(t, "mod", LevelModerator, CloseElection, nil)
	assert.Contains(t, reply.Text, "<@alice> (301) seated with 2 votes")

	reply = f.run(t, "v1", LevelMember, ListAdministrators, nil)
	assert.Contains(t, reply.Title, "1/5")
	assert.Contains(t, reply.Text, "Cohort 3: <@alice>")
}

func TestCloseElectionCanCancel(t *testing.T) {
	f := newFixture(t)
	f.run(t, "owner", LevelOwner, InitiateElection, nil)
	reply := f.run(t, "mod", LevelModerator, CloseElection, nil)
	assert.True(t, reply.Private, "registration phase cannot be finalized")

	reply = f.run(t, "mod", LevelModerator, CloseElection, map[string]string{OptCancel: "true", OptReason: "test run"})
	assert.Contains(t, reply.Text, "test run")
	reply = f.run(t, "v1", LevelMember, ElectionStatus, nil)
	assert.Contains(t, reply.Text, "cancelled")
}

func TestSupportAndOpposeRouteToImpeachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Executor.Appoint(ctx, "g1", "adm", "7", nil)
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	voters := f.profiles.Members("g1", "v", "4", 3)

	reply := f.run(t, voters[0], LevelMember, SupportReelection, map[string]string{OptAdmin: "<@adm>"})
	assert.Contains(t, reply.Text, "nothing is open")

	reply = f.run(t, voters[0], LevelMember, OpenImpeachment, map[string]string{OptAdmin: "adm", OptReason: "absent"})
	assert.True(t, reply.Private, "trusted tier required")

	reply = f.run(t, voters[0], LevelTrusted, OpenImpeachment, map[string]string{OptAdmin: "adm", OptReason: "absent"})
	assert.Contains(t, reply.Text, "3 needed")

	reply = f.run(t, voters[1], LevelMember, CancelImpeachment, map[string]string{OptAdmin: "adm"})
	assert.Contains(t, reply.Text, "only the initiator")

	f.run(t, voters[0], LevelMember, OpposeReelection, map[string]string{OptAdmin: "adm"})
	f.run(t, voters[1], LevelMember, SupportReelection, map[string]string{OptAdmin: "adm"})
	reply = f.run(t, "x", LevelMember, ImpeachmentTally, map[string]string{OptAdmin: "adm"})
	assert.Contains(t, reply.Text, "1 keep, 1 remove")

	reply = f.run(t, voters[2], LevelMember, OpposeReelection, map[string]string{OptAdmin: "adm"})
	assert.Contains(t, reply.Text, "success")

	_, err = f.svc.Executor.ActiveAdministrator(ctx, "g1", "adm")
	assert.ErrorIs(t, err, gov.ErrNotAdministrator)
}

func TestReelectionThroughCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Executor.Appoint(ctx, "g1", "adm", "7", nil)
	require.NoError(t, err)
	voters := f.profiles.Members("g1", "v", "4", 3)

	reply := f.run(t, "mod", LevelModerator, OpenReelection, map[string]string{OptAdmin: "adm", OptReason: "review"})
	assert.Contains(t, reply.Text, "0 of 3 needed")

	reply = f.run(t, "mod", LevelModerator, OpenReelection, map[string]string{OptAdmin: "adm"})
	assert.True(t, reply.Private)

	for _, v := range voters {
		f.run(t, v, LevelMember, SupportReelection, map[string]string{OptAdmin: "adm"})
	}
	reply = f.run(t, "x", LevelMember, ReelectionTally, map[string]string{OptAdmin: "adm"})
	assert.True(t, reply.Private, "no ongoing session after resolution")

	admin, err := f.svc.Executor.ActiveAdministrator(ctx, "g1", "adm")
	require.NoError(t, err)
	assert.True(t, admin.Active)
}
