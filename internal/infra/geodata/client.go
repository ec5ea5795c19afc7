package geodata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// ErrUnauthorized is returned when the provider rejects the API key.
var ErrUnauthorized = errors.New("geodata authentication failed")

// StatusError is a non-success response from the provider.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geodata responded %d: %s", e.Status, e.Body)
}

// Client reads sweeping schedules and parking regulations from a
// PostgREST-style provider: nearby queries go through RPC functions, lookups
// by id through table filters.
type Client struct {
	cfg        config.GeodataConfig
	httpClient *http.Client
	cache      *Cache
	logger     *logrus.Entry
}

func NewClient(cfg config.GeodataConfig, cache *Cache, logger *logrus.Entry) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logger,
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.URL, "/") + "/rest/v1/" + path
}

func (c *Client) NearbySchedules(ctx context.Context, p schedule.Point) ([]schedule.ScheduleCandidate, error) {
	body := map[string]float64{"lon": p.Longitude, "lat": p.Latitude}
	var rows []sweepingRow
	if err := c.rpc(ctx, c.cfg.SchedulesRPC, body, &rows); err != nil {
		return nil, err
	}
	out := make([]schedule.ScheduleCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCandidate())
	}
	return out, nil
}

func (c *Client) NearbyRegulations(ctx context.Context, p schedule.Point, radiusMeters float64) ([]schedule.RegulationCandidate, error) {
	body := map[string]float64{"lon": p.Longitude, "lat": p.Latitude, "radius_meters": radiusMeters}
	var rows []regulationRow
	if err := c.rpc(ctx, c.cfg.RegulationsRPC, body, &rows); err != nil {
		return nil, err
	}
	out := make([]schedule.RegulationCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCandidate())
	}
	return out, nil
}

func (c *Client) GetSchedule(ctx context.Context, scheduleID int64) (*schedule.ScheduleCandidate, error) {
	key := scheduleKey(scheduleID)
	var cached schedule.ScheduleCandidate
	if err := c.cache.get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).Warn("Schedule cache read failed")
	}

	var rows []sweepingRow
	if err := c.lookup(ctx, c.cfg.SchedulesTable, "block_sweep_id", scheduleID, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, schedule.ErrNotFound
	}
	candidate := rows[0].toCandidate()
	if err := c.cache.set(ctx, key, candidate); err != nil {
		c.logger.WithError(err).Warn("Schedule cache write failed")
	}
	return &candidate, nil
}

func (c *Client) GetRegulation(ctx context.Context, id int64) (*schedule.RegulationCandidate, error) {
	key := regulationKey(id)
	var cached schedule.RegulationCandidate
	if err := c.cache.get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).Warn("Regulation cache read failed")
	}

	var rows []regulationRow
	if err := c.lookup(ctx, c.cfg.RegulationsTable, "id", id, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, schedule.ErrNotFound
	}
	candidate := rows[0].toCandidate()
	if err := c.cache.set(ctx, key, candidate); err != nil {
		c.logger.WithError(err).Warn("Regulation cache write failed")
	}
	return &candidate, nil
}

func (c *Client) rpc(ctx context.Context, function string, body interface{}, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding %s request: %w", function, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("rpc/"+function), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building %s request: %w", function, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) lookup(ctx context.Context, table, column string, id int64, dest interface{}) error {
	q := url.Values{}
	q.Set(column, "eq."+strconv.FormatInt(id, 10))
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(table)+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("error building %s lookup: %w", table, err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	req.Header.Set("apikey", c.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling geodata %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("error decoding geodata %s response: %w", req.URL.Path, err)
	}
	return nil
}

var (
	_ schedule.SweepingSource   = (*Client)(nil)
	_ schedule.RegulationSource = (*Client)(nil)
)
