package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/guildgov/src/governance/commands"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevel(t *testing.T) {
	tiers := Tiers{ModeratorRoleID: "mod", TrustedRoleID: "trusted"}
	member := func(id string, perms int64, roles ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles, Permissions: perms}
	}

	assert.Equal(t, commands.LevelOwner, ResolveLevel("boss", member("boss", 0), tiers))
	assert.Equal(t, commands.LevelModerator, ResolveLevel("boss", member("u1", 0, "x", "mod"), tiers))
	assert.Equal(t, commands.LevelModerator, ResolveLevel("boss", member("u2", discordgo.PermissionAdministrator), tiers))
	assert.Equal(t, commands.LevelTrusted, ResolveLevel("boss", member("u3", 0, "trusted"), tiers))
	assert.Equal(t, commands.LevelMember, ResolveLevel("boss", member("u4", 0), tiers))
	assert.Equal(t, commands.LevelMember, ResolveLevel("boss", nil, tiers))
	assert.Equal(t, commands.LevelMember, ResolveLevel("", member("u5", 0), Tiers{}))
}
