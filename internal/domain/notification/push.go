// internal/domain/notification/push.go
package notification

import (
	"context"
	"errors"

	"sweep_notifier/internal/domain/subscription"
)

var (
	// ErrUnsupportedPlatform is returned by gateways that cannot reach a platform.
	ErrUnsupportedPlatform = errors.New("no push channel for platform")
	// ErrTokenUnregistered is returned when the channel reports the device
	// token as permanently gone.
	ErrTokenUnregistered = errors.New("device token is no longer registered")
)

// Message is one push delivery attempt.
type Message struct {
	Token    string
	Platform subscription.Platform
	Title    string
	Body     string
	Data     map[string]string
}

// PushGateway delivers messages. Send is a single attempt and is never retried.
type PushGateway interface {
	Send(ctx context.Context, msg Message) error
}

// MessageFromPayload converts a stored payload into a delivery.
func MessageFromPayload(p Payload) Message {
	return Message{Token: p.DeviceToken, Platform: p.Platform, Title: p.Title, Body: p.Body, Data: p.Data}
}
