package discord

import (
	"github.com/bwmarrin/discordgo"
)

// StyledChunks renders a titled reply and splits it into sendable messages.
func StyledChunks(title, body string) []string {
	block := FormatStyledBlock(title, body)
	if len(block) <= MaxDiscordMessageLen {
		return []string{block}
	}
	return SplitMessage(block)
}

// RespondStyled answers an interaction with a styled reply. Private replies
// are ephemeral; overflow goes out as followups with the same visibility.
func RespondStyled(s *discordgo.Session, interaction *discordgo.Interaction, title, body string, private bool) error {
	chunks := StyledChunks(title, body)
	if len(chunks) == 0 {
		chunks = []string{"Done."}
	}

	var flags discordgo.MessageFlags
	if private {
		flags = discordgo.MessageFlagsEphemeral
	}

	err := InteractionRespondNoEmbed(s, interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: chunks[0],
			Flags:   flags,
		},
	})
	if err != nil {
		return err
	}

	for _, chunk := range chunks[1:] {
		if _, err := FollowupNoEmbed(s, interaction, &discordgo.WebhookParams{Content: chunk, Flags: flags}); err != nil {
			return err
		}
	}
	return nil
}
