// Package notify fans governance announcements out to the chat notifier and
// the event stream. Delivery is best effort: failures are logged only.
package notify

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/logging"
	"github.com/stake-plus/guildgov/src/metrics"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

// Event kinds published on the stream.
const (
	ElectionInitiated   = "election.initiated"
	ElectionVoting      = "election.voting"
	ElectionCompleted   = "election.completed"
	ElectionCancelled   = "election.cancelled"
	BallotCast          = "election.ballot"
	AdminAppointed      = "admin.appointed"
	AdminRemoved        = "admin.removed"
	SessionOpened       = "reelection.opened"
	SessionResolved     = "reelection.resolved"
	ImpeachmentOpened   = "impeachment.opened"
	ImpeachmentResolved = "impeachment.resolved"
)

// EventSink receives structured governance events.
type EventSink interface {
	Publish(ctx context.Context, kind, guildID string, fields map[string]interface{}) error
}

// Announcer is safe to use as a nil pointer.
type Announcer struct {
	Notifier gov.Notifier
	Events   EventSink
	Metrics  *metrics.Metrics
}

// Announce sends text to the notifier and the event to the sink.
func (a *Announcer) Announce(ctx context.Context, guildID, kind, text string, fields map[string]interface{}) {
	if a == nil {
		return
	}
	a.Metrics.Event(kind)
	if a.Notifier != nil && text != "" {
		if err := a.Notifier.Send(ctx, guildID, text); err != nil {
			logFailure("notify", guildID, kind, err)
		}
	}
	if a.Events != nil {
		payload := map[string]interface{}{"text": text}
		for k, v := range fields {
			payload[k] = v
		}
		if err := a.Events.Publish(ctx, kind, guildID, payload); err != nil {
			logFailure("event", guildID, kind, err)
		}
	}
}

func logFailure(channel, guildID, kind string, err error) {
	ext := &gov.ExternalError{Op: channel + " " + kind, GuildID: guildID, Err: err}
	if logging.IsRateLimit(err) {
		log.Printf("notify: rate limited: %v", ext)
		return
	}
	log.Printf("notify: %v", ext)
}

// Stream publishes events to the Redis governance stream.
type Stream struct {
	rdb *redis.Client
}

func NewStream(rdb *redis.Client) *Stream {
	if rdb == nil {
		return nil
	}
	return &Stream{rdb: rdb}
}

func (s *Stream) Publish(ctx context.Context, kind, guildID string, fields map[string]interface{}) error {
	_, err := data.PublishEvent(ctx, s.rdb, kind, guildID, fields)
	return err
}
