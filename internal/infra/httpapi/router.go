package httpapi

import (
	"context"
	"net/http"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/schedule"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependencies are everything the router serves.
type Dependencies struct {
	Subscriptions  app.SubscriptionService
	Locations      app.LocationService
	Region         schedule.Region
	Metrics        HTTPObserver
	MetricsHandler http.Handler
	CORSOrigins    []string
	// Health reports whether the backing store is reachable. Optional.
	Health         func(ctx context.Context) error
	Logger         *logrus.Entry
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(metricsMiddleware(deps.Metrics))
	r.Use(corsMiddleware(deps.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				deps.Logger.WithError(err).Warn("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	locations := NewLocationHandler(deps.Locations, deps.Region)
	r.GET("/check-location", locations.Check)
	r.GET("/api/check-location", locations.Check)

	subs := NewSubscriptionHandler(deps.Subscriptions, deps.Region)
	r.POST("/subscriptions", subs.Create)
	r.GET("/subscriptions/:deviceToken", subs.List)
	r.DELETE("/subscriptions/:deviceToken", subs.DeleteAll)
	r.DELETE("/subscriptions/:deviceToken/:scheduleId", subs.Delete)

	return r
}
