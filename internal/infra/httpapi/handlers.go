package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// SubscriptionHandler exposes the subscription endpoints.
type SubscriptionHandler struct {
	service app.SubscriptionService
	region  schedule.Region
}

func NewSubscriptionHandler(service app.SubscriptionService, region schedule.Region) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, region: region}
}

func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, bindingError(err))
		return
	}
	kind := subscription.Type(req.SubscriptionType)
	if kind == "" {
		kind = subscription.TypeSweeping
	}
	status, err := h.service.Subscribe(c.Request.Context(), app.SubscribeRequest{
		DeviceToken: req.DeviceToken,
		Platform:    subscription.Platform(req.Platform),
		ScheduleID:  req.ScheduleID,
		Type:        kind,
		LeadMinutes: *req.LeadMinutes,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(*status, h.region))
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	statuses, err := h.service.List(c.Request.Context(), c.Param("deviceToken"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := subscriptionListResponse{Subscriptions: make([]subscriptionResponse, 0, len(statuses))}
	for _, st := range statuses {
		resp.Subscriptions = append(resp.Subscriptions, toSubscriptionResponse(st, h.region))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("scheduleId"), 10, 64)
	if err != nil || id <= 0 {
		respondValidation(c, fmt.Errorf("scheduleId must be a positive integer"))
		return
	}
	key := subscription.Key{DeviceToken: c.Param("deviceToken"), ScheduleID: id}
	if err := h.service.Unsubscribe(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubscriptionHandler) DeleteAll(c *gin.Context) {
	n, err := h.service.UnsubscribeAll(c.Request.Context(), c.Param("deviceToken"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteAllResponse{Deleted: n})
}

// LocationHandler answers check-location queries.
type LocationHandler struct {
	service app.LocationService
	region  schedule.Region
}

func NewLocationHandler(service app.LocationService, region schedule.Region) *LocationHandler {
	return &LocationHandler{service: service, region: region}
}

func (h *LocationHandler) Check(c *gin.Context) {
	var q locationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, bindingError(err))
		return
	}
	res, err := h.service.Check(c.Request.Context(), schedule.Point{Latitude: *q.Latitude, Longitude: *q.Longitude})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, toCheckLocationResponse(res, h.region))
}

// bindingError rewrites validator failures as "field: rule" pairs.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid request body: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), rule))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(parts, ", "))
}
