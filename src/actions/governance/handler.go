package governance

import (
	"github.com/bwmarrin/discordgo"
	shareddiscord "github.com/stake-plus/guildgov/src/discord"
	"github.com/stake-plus/guildgov/src/governance/commands"
)

// invocationFrom turns a slash command interaction into a router
// invocation. Interactions outside a guild are rejected.
func invocationFrom(i *discordgo.InteractionCreate, ownerID string, tiers shareddiscord.Tiers) (commands.Invocation, bool) {
	if i == nil || i.Interaction == nil || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return commands.Invocation{}, false
	}
	data := i.ApplicationCommandData()
	return commands.Invocation{
		Guild:   i.GuildID,
		User:    i.Member.User.ID,
		Level:   shareddiscord.ResolveLevel(ownerID, i.Member, tiers),
		Name:    data.Name,
		Options: shareddiscord.InvocationOptions(data.Options),
	}, true
}
