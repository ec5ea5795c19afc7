// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/subscription"

	"gopkg.in/telebot.v3"
)

const tokenPrefix = "tg:"

// stopUnique identifies the "Stop reminders" inline button.
const stopUnique = "stop"

// DeviceToken is the subscription device token of a Telegram chat.
func DeviceToken(chatID int64) string {
	return tokenPrefix + strconv.FormatInt(chatID, 10)
}

// ChatID parses a device token produced by DeviceToken.
func ChatID(token string) (int64, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return 0, fmt.Errorf("not a telegram device token: %q", token)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(token, tokenPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id in %q: %w", token, err)
	}
	return id, nil
}

// Sender is the part of *telebot.Bot the gateway needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Gateway delivers notifications as Telegram messages.
type Gateway struct {
	bot Sender
}

func NewGateway(b Sender) *Gateway {
	return &Gateway{bot: b}
}

// scheduleIDKeys are the payload data keys carrying the subscribed schedule id.
var scheduleIDKeys = []string{"schedule_block_sweep_id", "regulation_id"}

func scheduleIDFromData(data map[string]string) (int64, bool) {
	for _, k := range scheduleIDKeys {
		if v, ok := data[k]; ok {
			id, err := strconv.ParseInt(v, 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

// stopMarkup builds the inline keyboard that lets the chat drop the subscription.
func stopMarkup(scheduleID int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	btn := markup.Data("Stop reminders", stopUnique, strconv.FormatInt(scheduleID, 10))
	markup.Inline(markup.Row(btn))
	return markup
}

func (g *Gateway) Send(_ context.Context, msg notification.Message) error {
	if msg.Platform != subscription.PlatformTelegram {
		return fmt.Errorf("%w: %q", notification.ErrUnsupportedPlatform, msg.Platform)
	}
	chatID, err := ChatID(msg.Token)
	if err != nil {
		return err
	}

	options := &telebot.SendOptions{}
	if id, ok := scheduleIDFromData(msg.Data); ok {
		options.ReplyMarkup = stopMarkup(id)
	}
	text := msg.Title
	if msg.Body != "" {
		text += "\n" + msg.Body
	}
	_, err = g.bot.Send(&telebot.Chat{ID: chatID}, text, options)
	return err
}

var _ notification.PushGateway = (*Gateway)(nil)
