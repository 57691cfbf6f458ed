package config

import (
	"testing"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stretchr/testify/assert"
)

func TestSettingOverridesEnvironment(t *testing.T) {
	t.Setenv("REELECTION_QUORUM", "7")
	data.OverrideSettings(map[string]string{"reelection_quorum": "4"})
	t.Cleanup(func() { data.OverrideSettings(nil) })

	assert.Equal(t, 4, getIntSetting("reelection_quorum", "REELECTION_QUORUM", 3))
}

func TestEnvironmentFallback(t *testing.T) {
	data.OverrideSettings(nil)
	t.Setenv("GUILD_IDS", " 1, 2 ,,3")
	t.Setenv("IMPEACH_COOLDOWN", "36h")
	t.Setenv("REELECTION_MAX_AGE", "12")
	t.Setenv("ENABLE_GOVERNANCE", "off")

	cfg := LoadGovernanceConfig(nil)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.GuildIDs)
	assert.Equal(t, cfg.GuildIDs, LoadAPIConfig().GuildIDs)
	assert.Equal(t, 36*time.Hour, cfg.ImpeachCooldown)
	assert.Equal(t, 12*time.Hour, cfg.ReelectionMaxAge)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.ReelectionQuorum)
}

func TestMalformedValuesUseDefault(t *testing.T) {
	data.OverrideSettings(map[string]string{
		"impeach_quorum_min": "five",
		"scan_interval":      "soon",
		"enable_api":         "maybe",
	})
	t.Cleanup(func() { data.OverrideSettings(nil) })

	assert.Equal(t, 5, getIntSetting("impeach_quorum_min", "", 5))
	assert.Equal(t, time.Hour, getDurationSetting("scan_interval", "", time.Hour))
	assert.False(t, LoadAPIConfig().Enabled)
}
