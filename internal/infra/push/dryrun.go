package push

import (
	"context"

	"sweep_notifier/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// LogGateway only logs what would have been sent.
type LogGateway struct {
	logger *logrus.Entry
}

func NewLogGateway(logger *logrus.Entry) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, msg notification.Message) error {
	g.logger.WithFields(logrus.Fields{
		"platform": msg.Platform,
		"title":    msg.Title,
		"body":     msg.Body,
		"data":     msg.Data,
	}).Info("Dry run: push not sent")
	return nil
}
