// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const helpText = "Subscribe to street sweeping or parking reminders from the app using the device token below.\n\n" +
	"/subscriptions - list your reminders\n" +
	"/unsubscribe <scheduleId> - stop one reminder\n" +
	"/help - show this message"

func startText(chatID int64) string {
	return fmt.Sprintf("Hi! Your device token is %s\n\n%s", DeviceToken(chatID), helpText)
}

func listText(statuses []app.SubscriptionStatus, region schedule.Region) string {
	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for _, st := range statuses {
		sub := st.Subscription
		fmt.Fprintf(&b, "\n• %s #%d, %d min ahead", sub.Target.Type(), sub.Target.ScheduleID(), sub.LeadMinutes)
		if st.Armed() {
			fmt.Fprintf(&b, ", next at %s", region.In(st.FireAt).Format("Mon Jan 2, 3:04 PM"))
		}
	}
	return b.String()
}

func parseScheduleID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one schedule id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("schedule id must be a positive number")
	}
	return id, nil
}

// RegisterBotCommands wires the chat commands and the "Stop reminders" button.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	subs app.SubscriptionService,
	region schedule.Region,
	baseLogger *logrus.Entry, // For contextual logging
) {
	b.Handle("/start", func(c telebot.Context) error {
		baseLogger.WithFields(logrus.Fields{"command": "/start", "chat_id": c.Chat().ID}).Info("Processing command")
		return c.Send(startText(c.Chat().ID))
	})

	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(helpText)
	})

	b.Handle("/subscriptions", func(c telebot.Context) error {
		token := DeviceToken(c.Chat().ID)
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/subscriptions", "device_token": token})
		statuses, err := subs.List(ctx, token)
		if errors.Is(err, subscription.ErrNotFound) {
			return c.Send("You have no reminders yet.")
		}
		if err != nil {
			logCtx.WithError(err).Error("Error listing subscriptions")
			return c.Send("Something went wrong, please try again later.")
		}
		return c.Send(listText(statuses, region))
	})

	b.Handle("/unsubscribe", func(c telebot.Context) error {
		token := DeviceToken(c.Chat().ID)
		logCtx := baseLogger.WithFields(logrus.Fields{"command": "/unsubscribe", "device_token": token})
		id, err := parseScheduleID(c.Args())
		if err != nil {
			return c.Send("Usage: /unsubscribe <scheduleId> (" + err.Error() + ")")
		}
		return c.Send(unsubscribe(ctx, subs, subscription.Key{DeviceToken: token, ScheduleID: id}, logCtx))
	})

	stopBtn := (&telebot.ReplyMarkup{}).Data("Stop reminders", stopUnique)
	b.Handle(&stopBtn, func(c telebot.Context) error {
		token := DeviceToken(c.Chat().ID)
		logCtx := baseLogger.WithFields(logrus.Fields{"callback": stopUnique, "device_token": token})
		id, err := parseScheduleID([]string{c.Data()})
		if err != nil {
			logCtx.WithField("data", c.Data()).Warn("Invalid stop callback data")
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown reminder."})
		}
		return c.Respond(&telebot.CallbackResponse{Text: unsubscribe(ctx, subs, subscription.Key{DeviceToken: token, ScheduleID: id}, logCtx)})
	})
}

func unsubscribe(ctx context.Context, subs app.SubscriptionService, key subscription.Key, logCtx *logrus.Entry) string {
	err := subs.Unsubscribe(ctx, key)
	switch {
	case err == nil:
		logCtx.WithField("schedule_id", key.ScheduleID).Info("Unsubscribed from chat")
		return fmt.Sprintf("Reminders for #%d stopped.", key.ScheduleID)
	case errors.Is(err, subscription.ErrNotFound):
		return fmt.Sprintf("No reminder for #%d.", key.ScheduleID)
	default:
		logCtx.WithError(err).Error("Error unsubscribing")
		return "Something went wrong, please try again later."
	}
}
