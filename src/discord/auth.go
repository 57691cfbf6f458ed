package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/guildgov/src/governance/commands"
)

func memberHasRole(member *discordgo.Member, roleID string) bool {
	if member == nil || roleID == "" {
		return false
	}
	for _, role := range member.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}

// Tiers names the roles that lift a member above the base tier.
type Tiers struct {
	ModeratorRoleID string
	TrustedRoleID   string
}

// ResolveLevel maps a guild member onto a command tier: the guild owner is
// owner, the moderator role or the Administrator permission is moderator,
// the trusted role is trusted, everyone else is member.
func ResolveLevel(ownerID string, member *discordgo.Member, tiers Tiers) commands.Level {
	if member == nil || member.User == nil {
		return commands.LevelMember
	}
	switch {
	case ownerID != "" && member.User.ID == ownerID:
		return commands.LevelOwner
	case memberHasRole(member, tiers.ModeratorRoleID),
		member.Permissions&discordgo.PermissionAdministrator != 0:
		return commands.LevelModerator
	case memberHasRole(member, tiers.TrustedRoleID):
		return commands.LevelTrusted
	}
	return commands.LevelMember
}
