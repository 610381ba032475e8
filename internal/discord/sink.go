package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/scottdmilner/pipebot/internal/notify"
)

// MaxContentLength is Discord's message content limit, in characters.
const MaxContentLength = notify.MaxContentLength

// Sink delivers notifications to Discord channels.
type Sink struct {
	send func(ctx context.Context, channelID string, data *discordgo.MessageSend) error
}

// NewSink creates a Sink over an open session.
func NewSink(session *discordgo.Session) *Sink {
	return &Sink{
		send: func(ctx context.Context, channelID string, data *discordgo.MessageSend) error {
			_, err := session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
			return err
		},
	}
}

// Send implements notify.Sender.
func (s *Sink) Send(ctx context.Context, channelID string, msg notify.Message) error {
	if err := s.send(ctx, channelID, toMessageSend(msg)); err != nil {
		return &notify.DeliveryError{ChannelID: channelID, Err: err}
	}
	return nil
}

func toMessageSend(msg notify.Message) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: truncate(msg.Content, MaxContentLength)}
	if e := msg.Embed; e != nil {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		if !e.Timestamp.IsZero() {
			embed.Timestamp = e.Timestamp.Format(time.RFC3339)
		}
		if e.ThumbnailURL != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
		}
		data.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return data
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
