// Package metrics records domain-level counters for the membership engine.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/conectalocal/vitrina"

// Metrics exposes counters for the lifecycle, payment, and highlight flows.
type Metrics struct {
	subscriptionTransitions metric.Int64Counter
	paymentEvents           metric.Int64Counter
	highlightToggles        metric.Int64Counter
	rateLimitVerdicts       metric.Int64Counter
}

func New() (*Metrics, error) {
	meter := otel.Meter(meterName)

	subscriptionTransitions, err := meter.Int64Counter("vitrina_subscription_transitions_total",
		metric.WithDescription("Subscription lifecycle transitions by operation and outcome"))
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("vitrina_payment_events_total",
		metric.WithDescription("Payment submissions, approvals, rejections, and captures by gateway"))
	if err != nil {
		return nil, err
	}
	highlightToggles, err := meter.Int64Counter("vitrina_highlight_toggles_total",
		metric.WithDescription("Highlight slot activations and deactivations by outcome"))
	if err != nil {
		return nil, err
	}
	rateLimitVerdicts, err := meter.Int64Counter("vitrina_ratelimit_verdicts_total",
		metric.WithDescription("Token bucket verdicts by limiter and outcome"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		subscriptionTransitions: subscriptionTransitions,
		paymentEvents:           paymentEvents,
		highlightToggles:        highlightToggles,
		rateLimitVerdicts:       rateLimitVerdicts,
	}, nil
}

func (m *Metrics) RecordSubscriptionTransition(ctx context.Context, operation, outcome string) {
	if m == nil || m.subscriptionTransitions == nil {
		return
	}
	m.subscriptionTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, gateway, event string) {
	if m == nil || m.paymentEvents == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("event", event),
	))
}

func (m *Metrics) RecordHighlightToggle(ctx context.Context, outcome string) {
	if m == nil || m.highlightToggles == nil {
		return
	}
	m.highlightToggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordRateLimitVerdict(ctx context.Context, limiter, outcome string) {
	if m == nil || m.rateLimitVerdicts == nil {
		return
	}
	m.rateLimitVerdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter", limiter),
		attribute.String("outcome", outcome),
	))
}
