package notify

import (
	"context"

	"github.com/pkg/errors"
)

const (
	ChannelPush = "push"
	ChannelSMS  = "sms"
)

// ErrPermanent wraps gateway rejections that will not succeed on retry.
var ErrPermanent = errors.New("notification rejected")

type Message struct {
	Channel string `json:"channel"`
	// To is a team id for push and a phone number for sms.
	To          string `json:"to"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body"`
	TrackingURL string `json:"trackingUrl,omitempty"`
	// DedupKey lets the gateway drop redelivered messages.
	DedupKey string `json:"dedupKey"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}
