package discord

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/guildgov/src/governance/commands"
)

func adminOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        commands.OptAdmin,
		Description: description,
		Required:    true,
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        commands.OptReason,
		Description: "Why (shown to the server)",
		Required:    required,
		MaxLength:   500,
	}
}

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	commands.InitiateElection: {
		Name:        commands.InitiateElection,
		Description: "Open a new administrator election",
	},
	commands.RegisterCandidacy: {
		Name:        commands.RegisterCandidacy,
		Description: "Stand as a candidate for your cohort",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commands.OptManifesto,
				Description: "A short statement for voters (up to 1000 characters)",
				MaxLength:   1000,
			},
		},
	},
	commands.WithdrawCandidacy: {
		Name:        commands.WithdrawCandidacy,
		Description: "Withdraw your candidacy while registration is open",
	},
	commands.ListCandidates: {
		Name:        commands.ListCandidates,
		Description: "List the approved candidates of the running election",
	},
	commands.CastVote: {
		Name:        commands.CastVote,
		Description: "Vote for a candidate by code",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commands.OptCode,
				Description: "Candidate code, e.g. 701",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commands.OptVisibility,
				Description: "Announce your ballot publicly or keep it private",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "private", Value: "private"},
					{Name: "public", Value: "public"},
				},
			},
		},
	},
	commands.BeginVotingPhase: {
		Name:        commands.BeginVotingPhase,
		Description: "Close registration and open voting",
	},
	commands.CloseElection: {
		Name:        commands.CloseElection,
		Description: "Count the ballots and seat the winners, or cancel the election",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        commands.OptCancel,
				Description: "Cancel instead of counting",
			},
			reasonOption(false),
		},
	},
	commands.SupportReelection: {
		Name:        commands.SupportReelection,
		Description: "Vote to keep an administrator",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator under review")},
	},
	commands.OpposeReelection: {
		Name:        commands.OpposeReelection,
		Description: "Vote to remove an administrator",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator under review")},
	},
	commands.ReelectionTally: {
		Name:        commands.ReelectionTally,
		Description: "Show the count of an ongoing reelection",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator under review")},
	},
	commands.OpenReelection: {
		Name:        commands.OpenReelection,
		Description: "Put an administrator up for reelection",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator to review"), reasonOption(false)},
	},
	commands.OpenImpeachment: {
		Name:        commands.OpenImpeachment,
		Description: "Start an impeachment of an administrator",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator to impeach"), reasonOption(true)},
	},
	commands.CancelImpeachment: {
		Name:        commands.CancelImpeachment,
		Description: "Withdraw an impeachment you started",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator under impeachment")},
	},
	commands.ImpeachmentTally: {
		Name:        commands.ImpeachmentTally,
		Description: "Show the count of an ongoing impeachment",
		Options:     []*discordgo.ApplicationCommandOption{adminOption("Administrator under impeachment")},
	},
	commands.ListAdministrators: {
		Name:        commands.ListAdministrators,
		Description: "List the seated administrators",
	},
	commands.ElectionStatus: {
		Name:        commands.ElectionStatus,
		Description: "Show the current or most recent election",
	},
}

var defaultCommandOrder = []string{
	commands.ElectionStatus,
	commands.InitiateElection,
	commands.RegisterCandidacy,
	commands.WithdrawCandidacy,
	commands.ListCandidates,
	commands.CastVote,
	commands.BeginVotingPhase,
	commands.CloseElection,
	commands.ListAdministrators,
	commands.OpenReelection,
	commands.SupportReelection,
	commands.OpposeReelection,
	commands.ReelectionTally,
	commands.OpenImpeachment,
	commands.CancelImpeachment,
	commands.ImpeachmentTally,
}

// RegisterSlashCommands registers the requested slash commands for a guild.
// When no command names are provided, all known commands are registered.
func RegisterSlashCommands(s *discordgo.Session, guildID string, names ...string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to register slash commands")
	}

	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			log.Printf("discord: unknown slash command %q", name)
			continue
		}

		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition)
		if err != nil {
			if isDuplicateCommandError(err) {
				log.Printf("discord: slash command %q already registered", name)
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			log.Printf("discord: failed to register command %q: %v", name, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}

	return nil
}

// DeleteSlashCommands removes all registered slash commands for a guild.
func DeleteSlashCommands(s *discordgo.Session, guildID string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to delete slash commands")
	}

	registered, err := s.ApplicationCommands(s.State.User.ID, guildID)
	if err != nil {
		return err
	}

	for _, cmd := range registered {
		if err := s.ApplicationCommandDelete(s.State.User.ID, guildID, cmd.ID); err != nil {
			return err
		}
	}

	return nil
}

// InvocationOptions flattens slash command options into strings keyed by
// option name. User options carry the user ID.
func InvocationOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		switch o.Type {
		case discordgo.ApplicationCommandOptionBoolean:
			out[o.Name] = fmt.Sprintf("%t", o.BoolValue())
		case discordgo.ApplicationCommandOptionUser:
			if id, ok := o.Value.(string); ok {
				out[o.Name] = id
			}
		default:
			out[o.Name] = fmt.Sprintf("%v", o.Value)
		}
	}
	return out
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			msg := strings.ToLower(restErr.Message.Message)
			if strings.Contains(msg, "already exists") {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}
