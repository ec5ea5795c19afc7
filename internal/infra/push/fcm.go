package push

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/subscription"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const (
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

// FCMGateway sends through the FCM HTTP v1 API.
type FCMGateway struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	logger     *logrus.Entry
}

// NewFCMGateway authenticates with a service account. credentials may be the
// raw JSON key or its base64 encoding; projectID falls back to the key's own.
func NewFCMGateway(ctx context.Context, credentials, projectID string, ratePerSec int, logger *logrus.Entry) (*FCMGateway, error) {
	raw, err := decodeCredentials(credentials)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FCM service account: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("FCM project id is not set")
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	return newFCMGateway(client, fmt.Sprintf(fcmEndpoint, projectID), ratePerSec, logger), nil
}

func newFCMGateway(client *http.Client, endpoint string, ratePerSec int, logger *logrus.Entry) *FCMGateway {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	// Burst = rate per sec, so a dispatch batch does not block on its first sends.
	return &FCMGateway{
		httpClient: client,
		endpoint:   endpoint,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:     logger,
	}
}

func decodeCredentials(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("FCM service account is empty")
	}
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("FCM service account is neither JSON nor base64: %w", err)
	}
	return raw, nil
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
	Webpush      *fcmWebpush       `json:"webpush,omitempty"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmAPNS struct {
	Headers map[string]string      `json:"headers"`
	Payload map[string]interface{} `json:"payload"`
}

type fcmWebpush struct {
	Headers map[string]string `json:"headers"`
}

type fcmError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildFCMMessage(msg notification.Message) fcmMessage {
	m := fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}
	switch msg.Platform {
	case subscription.PlatformAndroid:
		m.Android = &fcmAndroid{Priority: "HIGH"}
	case subscription.PlatformIOS:
		m.APNS = &fcmAPNS{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: map[string]interface{}{"aps": map[string]interface{}{"sound": "default"}},
		}
	case subscription.PlatformWeb:
		m.Webpush = &fcmWebpush{Headers: map[string]string{"Urgency": "high"}}
	}
	return m
}

func (g *FCMGateway) Send(ctx context.Context, msg notification.Message) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]fcmMessage{"message": buildFCMMessage(msg)})
	if err != nil {
		return fmt.Errorf("error encoding FCM message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building FCM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling FCM: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		g.logger.WithField("platform", msg.Platform).Debug("FCM accepted push")
		return nil
	}

	var fe fcmError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&fe)
	if resp.StatusCode == http.StatusNotFound || fe.Error.Status == "UNREGISTERED" {
		return fmt.Errorf("FCM responded %d: %w", resp.StatusCode, notification.ErrTokenUnregistered)
	}
	return fmt.Errorf("FCM responded %d %s: %s", resp.StatusCode, fe.Error.Status, fe.Error.Message)
}
