package notion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/thebtf/notionstamp/internal/notion"

// sendMetrics records per-request counters against the global meter provider.
type sendMetrics struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newSendMetrics() *sendMetrics {
	meter := otel.Meter(meterName)
	m := &sendMetrics{}

	var err error
	if m.requests, err = meter.Int64Counter("notion.requests",
		metric.WithDescription("Notion API requests sent")); err != nil {
		log.Warn().Err(err).Msg("Failed to create notion.requests counter")
		m.requests = noop.Int64Counter{}
	}
	if m.failures, err = meter.Int64Counter("notion.failures",
		metric.WithDescription("Notion API requests that failed or were rejected")); err != nil {
		log.Warn().Err(err).Msg("Failed to create notion.failures counter")
		m.failures = noop.Int64Counter{}
	}
	if m.duration, err = meter.Float64Histogram("notion.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Notion API request latency")); err != nil {
		log.Warn().Err(err).Msg("Failed to create notion.request.duration histogram")
		m.duration = noop.Float64Histogram{}
	}
	return m
}

func (m *sendMetrics) record(ctx context.Context, path string, result *Result, err error, took time.Duration) {
	attrs := []attribute.KeyValue{attribute.String("path", path)}
	if result != nil {
		attrs = append(attrs, attribute.String("object", result.Kind.String()))
	}
	opt := metric.WithAttributes(attrs...)

	// ctx may already be past its deadline; metrics must still record.
	ctx = context.WithoutCancel(ctx)

	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, took.Seconds(), opt)
	if err != nil {
		reason := "transport"
		var remote *RemoteError
		if errors.As(err, &remote) {
			reason = "remote"
		}
		m.failures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("reason", reason))...))
	}
}
