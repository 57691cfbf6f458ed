package governance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stake-plus/guildgov/src/metrics"
	"github.com/stake-plus/guildgov/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.GovernanceConfig {
	return config.GovernanceConfig{
		RegistrationPeriod:   72 * time.Hour,
		VotingPeriod:         48 * time.Hour,
		MaxAdministrators:    3,
		AutoApprove:          true,
		ReelectionQuorum:     3,
		ReelectionMinTenure:  30 * 24 * time.Hour,
		ReelectionMaxAge:     72 * time.Hour,
		ImpeachMinTenure:     7 * 24 * time.Hour,
		ImpeachCooldown:      7 * 24 * time.Hour,
		ImpeachRateLimit:     2,
		ImpeachRateWindow:    24 * time.Hour,
		ImpeachQuorumPercent: 10,
		ImpeachQuorumMin:     5,
		ImpeachQuorumMax:     30,
		ImpeachMaxAge:        72 * time.Hour,
	}
}

func TestRunIsolatesGuildFailures(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	r := NewRunner([]Job{{Label: "sweep", Run: func(_ context.Context, guildID string) error {
		ran = append(ran, guildID)
		if guildID == "bad" {
			return boom
		}
		return nil
	}}}, nil)

	err := r.Run(context.Background(), "sweep", []string{"a", "bad", "c"})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "bad", "c"}, ran)

	var scanErr *gov.ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, "bad", scanErr.GuildID)
	assert.Equal(t, "sweep", scanErr.Label)
	assert.True(t, errors.Is(err, boom))

	assert.Error(t, r.Run(context.Background(), "missing", []string{"a"}))
}

func TestRunRecoversPanics(t *testing.T) {
	var after atomic.Int32
	r := NewRunner([]Job{{Label: "sweep", Run: func(_ context.Context, guildID string) error {
		if guildID == "a" {
			panic("bad state")
		}
		after.Add(1)
		return nil
	}}}, nil)

	err := r.Run(context.Background(), "sweep", []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
	assert.EqualValues(t, 1, after.Load())
}

func TestLockedScanIsSkipped(t *testing.T) {
	locker := NewLocalLocker()
	unlock, ok, err := locker.Lock(context.Background(), "sweep:g1")
	require.NoError(t, err)
	require.True(t, ok)

	var runs atomic.Int32
	r := NewRunner([]Job{{Label: "sweep", Run: func(context.Context, string) error {
		runs.Add(1)
		return nil
	}}}, locker)

	require.NoError(t, r.Run(context.Background(), "sweep", []string{"g1"}))
	assert.Zero(t, runs.Load())

	unlock()
	require.NoError(t, r.Run(context.Background(), "sweep", []string{"g1"}))
	assert.EqualValues(t, 1, runs.Load())
}

func TestServiceScansOpenElectionAndReconcile(t *testing.T) {
	db := govtest.OpenDB(t)
	clock := govtest.NewClock()
	gateway := govtest.NewGateway(40)
	svc := NewService(testConfig(), Deps{
		DB:       db,
		Profiles: govtest.NewProfiles(),
		Gateway:  gateway,
		Notifier: &govtest.Notifier{},
		Now:      clock.Func(),
	})
	ctx := context.Background()

	_, _, err := svc.Executor.Appoint(ctx, "g1", "adm", "7", nil)
	require.NoError(t, err)
	gateway.SetPrivileged("g1", "adm", false)

	r := NewRunner(svc.Jobs(), nil)
	require.NoError(t, r.RunAll(ctx, []string{"g1", "g2"}))

	for _, guild := range []string{"g1", "g2"} {
		st, err := svc.Elections.Status(ctx, guild)
		require.NoError(t, err)
		require.NotNil(t, st.Election, guild)
		assert.Equal(t, gov.ElectionRegistration, st.Election.Status)
	}
	st, err := svc.Elections.Status(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, gov.ElectionReelection, st.Election.Type)

	admins, err := gateway.ListAdmins(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"adm"}, admins, "reconcile regrants")

	require.NoError(t, r.RunAll(ctx, []string{"g1", "g2"}))
	var elections int64
	require.NoError(t, db.Model(&gov.Election{}).Count(&elections).Error)
	assert.EqualValues(t, 2, elections, "scans are idempotent")
}

func TestServiceRunnerReportsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := NewService(testConfig(), Deps{
		DB:       govtest.OpenDB(t),
		Profiles: govtest.NewProfiles(),
		Gateway:  govtest.NewGateway(40),
		Metrics:  metrics.New(reg),
		Now:      govtest.NewClock().Func(),
	})

	require.NoError(t, svc.NewRunner(nil).RunAll(context.Background(), []string{"g1"}))

	count, err := testutil.GatherAndCount(reg, "guildgov_scans_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "one ok series per scan label")

	count, err = testutil.GatherAndCount(reg, "guildgov_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the election scan opened one election")
}
