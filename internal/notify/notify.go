// Package notify defines the outbound chat notification contract.
package notify

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/scottdmilner/pipebot/internal/notify Sender

// ColorYellow is the embed color used for warnings.
const ColorYellow = 0xf1c40f

// MaxContentLength is the longest message content, in characters, that chat
// channels accept. Senders truncate anything longer.
const MaxContentLength = 2000

// Sender delivers a message to a chat channel.
type Sender interface {
	Send(ctx context.Context, channelID string, msg Message) error
}

// Message is a chat notification. Content, Embed, or both may be set.
type Message struct {
	Content string
	Embed   *Embed
}

// Embed is a rich notification card.
type Embed struct {
	Title        string
	Description  string
	Color        int
	Timestamp    time.Time
	ThumbnailURL string
}

// DeliveryError reports that a message could not be delivered.
type DeliveryError struct {
	ChannelID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to channel %s failed: %v", e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
