package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// TargetResolver turns a declarative target spec into a live target.
type TargetResolver func(spec TargetSpec) (DeliveryTarget, error)

// Router fans matched change events out to subscription targets.
type Router struct {
	subs []Subscription
	log  *logging.Logger
}

// New builds a router from already-resolved subscriptions.
func New(subs []Subscription, log *logging.Logger) *Router {
	return &Router{subs: subs, log: log}
}

// Build resolves subscription specs into live targets and returns the
// router. Resolution fails fast; a misconfigured target is a startup
// error, not a runtime one.
func Build(specs []SubscriptionSpec, resolve TargetResolver, log *logging.Logger) (*Router, error) {
	subs := make([]Subscription, 0, len(specs))
	for _, spec := range specs {
		target, err := resolve(spec.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve target for subscription %s: %w", spec.Name, err)
		}
		subs = append(subs, Subscription{
			Name:    spec.Name,
			Pattern: spec.Pattern,
			Target:  target,
		})
	}
	return New(subs, log), nil
}

// Route evaluates the event against every subscription and delivers it to
// each matched target. Delivery failures are isolated per target: every
// matched target is attempted, and the joined errors are returned along
// with the number of successful deliveries.
func (r *Router) Route(ctx context.Context, event models.ChangeEvent) (int, error) {
	delivered := 0
	var errs []error

	for _, sub := range r.subs {
		if !sub.Pattern.Match(event) {
			continue
		}

		if err := sub.Target.Deliver(ctx, event); err != nil {
			r.log.WarnContext(ctx, "delivery to target failed",
				"subscription", sub.Name,
				"target", sub.Target.Name(),
				"entity_key", event.EntityKey,
				"error", err)
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.Name, err))
			metrics.EventsRouted.WithLabelValues(sub.Target.Name(), "error").Inc()
			continue
		}

		metrics.EventsRouted.WithLabelValues(sub.Target.Name(), "ok").Inc()
		delivered++
	}

	return delivered, errors.Join(errs...)
}
