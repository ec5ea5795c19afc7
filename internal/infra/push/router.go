package push

import (
	"context"
	"fmt"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/subscription"
)

// Router picks a gateway per platform.
type Router struct {
	routes map[subscription.Platform]notification.PushGateway
}

func NewRouter() *Router {
	return &Router{routes: make(map[subscription.Platform]notification.PushGateway)}
}

// Route registers gw for the given platforms, replacing earlier routes.
func (r *Router) Route(gw notification.PushGateway, platforms ...subscription.Platform) *Router {
	for _, p := range platforms {
		r.routes[p] = gw
	}
	return r
}

func (r *Router) Send(ctx context.Context, msg notification.Message) error {
	gw, ok := r.routes[msg.Platform]
	if !ok {
		return fmt.Errorf("%w: %q", notification.ErrUnsupportedPlatform, msg.Platform)
	}
	return gw.Send(ctx, msg)
}

var (
	_ notification.PushGateway = (*Router)(nil)
	_ notification.PushGateway = (*FCMGateway)(nil)
	_ notification.PushGateway = (*LogGateway)(nil)
)
