package governance

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	shareddiscord "github.com/stake-plus/guildgov/src/discord"
	"github.com/stake-plus/guildgov/src/governance/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slashInteraction(guildID string, member *discordgo.Member, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Member:  member,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
	}}
}

func TestInvocationFrom(t *testing.T) {
	member := &discordgo.Member{User: &discordgo.User{ID: "u1"}, Roles: []string{"trusted"}}
	i := slashInteraction("g1", member, commands.CastVote,
		&discordgo.ApplicationCommandInteractionDataOption{Name: commands.OptCode, Type: discordgo.ApplicationCommandOptionString, Value: "301"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: commands.OptVisibility, Type: discordgo.ApplicationCommandOptionString, Value: "public"},
	)

	inv, ok := invocationFrom(i, "owner", shareddiscord.Tiers{TrustedRoleID: "trusted"})
	require.True(t, ok)
	assert.Equal(t, "g1", inv.Guild)
	assert.Equal(t, "u1", inv.User)
	assert.Equal(t, commands.LevelTrusted, inv.Level)
	assert.Equal(t, commands.CastVote, inv.Name)
	assert.Equal(t, map[string]string{"code": "301", "visibility": "public"}, inv.Options)

	inv, ok = invocationFrom(i, "u1", shareddiscord.Tiers{})
	require.True(t, ok)
	assert.Equal(t, commands.LevelOwner, inv.Level)
}

func TestInvocationFromDirectMessage(t *testing.T) {
	i := slashInteraction("", nil, commands.ElectionStatus)
	i.User = &discordgo.User{ID: "u1"}
	_, ok := invocationFrom(i, "", shareddiscord.Tiers{})
	assert.False(t, ok)
}
