package discord

import (
	"context"
	"fmt"

	"github.com/stake-plus/guildgov/src/shared/gov"
)

// ChannelNotifier posts governance announcements to one channel per guild.
type ChannelNotifier struct {
	sender    ChannelSender
	channelOf func(guildID string) string
}

var _ gov.Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier resolves the announcement channel with channelOf.
// Guilds without a channel are skipped silently.
func NewChannelNotifier(sender ChannelSender, channelOf func(guildID string) string) *ChannelNotifier {
	return &ChannelNotifier{sender: sender, channelOf: channelOf}
}

func (n *ChannelNotifier) Send(ctx context.Context, guildID, text string) error {
	channelID := ""
	if n.channelOf != nil {
		channelID = n.channelOf(guildID)
	}
	if channelID == "" {
		return nil
	}
	for _, chunk := range SplitMessage(BeautifyForDiscord(text)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := SendMessageNoEmbed(n.sender, channelID, chunk); err != nil {
			return fmt.Errorf("announce to %s: %w", channelID, err)
		}
	}
	return nil
}
