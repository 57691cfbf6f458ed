package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// ChannelSender is the part of a Discord session used to post plain messages.
type ChannelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// SendMessageNoEmbed sends a standard message after stripping Discord URL embeds.
func SendMessageNoEmbed(s ChannelSender, channelID, content string) (*discordgo.Message, error) {
	return s.ChannelMessageSend(channelID, WrapURLsNoEmbed(content))
}

// InteractionRespondNoEmbed wraps InteractionRespond ensuring the data content is sanitized.
func InteractionRespondNoEmbed(s *discordgo.Session, interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	sanitizeInteractionResponse(resp)
	return s.InteractionRespond(interaction, resp)
}

// FollowupNoEmbed posts an additional interaction message with sanitized content.
func FollowupNoEmbed(s *discordgo.Session, interaction *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	if params == nil {
		return nil, errors.New("discord: followup payload cannot be nil")
	}
	params.Content = WrapURLsNoEmbed(params.Content)
	sanitizeEmbeds(params.Embeds)
	return s.FollowupMessageCreate(interaction, true, params)
}

func sanitizeInteractionResponse(resp *discordgo.InteractionResponse) {
	if resp == nil || resp.Data == nil {
		return
	}
	if resp.Data.Content != "" {
		resp.Data.Content = WrapURLsNoEmbed(resp.Data.Content)
	}
	sanitizeEmbeds(resp.Data.Embeds)
}

func sanitizeEmbeds(embeds []*discordgo.MessageEmbed) {
	for _, embed := range embeds {
		if embed == nil {
			continue
		}

		if embed.Description != "" {
			embed.Description = WrapURLsNoEmbed(embed.Description)
		}

		if embed.Footer != nil && embed.Footer.Text != "" {
			embed.Footer.Text = WrapURLsNoEmbed(embed.Footer.Text)
		}

		for _, field := range embed.Fields {
			if field == nil {
				continue
			}
			if field.Name != "" {
				field.Name = WrapURLsNoEmbed(field.Name)
			}
			if field.Value != "" {
				field.Value = WrapURLsNoEmbed(field.Value)
			}
		}
	}
}
