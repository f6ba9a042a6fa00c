// Package observe records parley's OpenTelemetry metrics. The daemon keeps
// them in an in-process reader that status can snapshot.
package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/wire"
)

const meterName = "github.com/rbright/parley"

// Metrics holds every instrument. All methods are safe for concurrent use.
type Metrics struct {
	// CapabilityFaults counts failed host calls by capability.
	CapabilityFaults metric.Int64Counter
	// Requests counts engine requests by kind and status (sent, dropped).
	Requests metric.Int64Counter
	// Chunks counts chunk outcomes (executed, appended, noise).
	Chunks metric.Int64Counter
	// Commands counts handled commands by type and status.
	Commands metric.Int64Counter
	// Resolutions counts "use N" selections of pending alternatives.
	Resolutions metric.Int64Counter
	// KeepAliveTimeouts counts sessions dropped for a missing keepalive ack.
	KeepAliveTimeouts metric.Int64Counter
	// PluginTimeouts counts plugins dropped for not answering in time.
	PluginTimeouts metric.Int64Counter
	// ExecuteDuration tracks how long one execute cycle takes.
	ExecuteDuration metric.Float64Histogram
}

var executeBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CapabilityFaults, err = m.Int64Counter("parley.capability.faults",
		metric.WithDescription("Failed host capability calls by capability."),
	); err != nil {
		return nil, err
	}
	if met.Requests, err = m.Int64Counter("parley.engine.requests",
		metric.WithDescription("Engine requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter("parley.chunks",
		metric.WithDescription("Evaluated chunks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("parley.commands",
		metric.WithDescription("Handled commands by type and status."),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("parley.resolutions",
		metric.WithDescription("Pending alternatives selected with use."),
	); err != nil {
		return nil, err
	}
	if met.KeepAliveTimeouts, err = m.Int64Counter("parley.engine.keepalive_timeouts",
		metric.WithDescription("Engine sessions dropped for a missing keepalive acknowledgement."),
	); err != nil {
		return nil, err
	}
	if met.PluginTimeouts, err = m.Int64Counter("parley.plugin.timeouts",
		metric.WithDescription("Plugins dropped for not answering a request in time."),
	); err != nil {
		return nil, err
	}
	if met.ExecuteDuration, err = m.Float64Histogram("parley.execute.duration",
		metric.WithDescription("Latency of one execute cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(executeBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RequestSent(kind string) {
	m.Requests.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", "sent"),
	))
}

func (m *Metrics) RequestDropped(kind string) {
	m.Requests.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", "dropped"),
	))
}

func (m *Metrics) KeepAliveTimeout() {
	m.KeepAliveTimeouts.Add(context.Background(), 1)
}

func (m *Metrics) PluginTimeout(app string) {
	m.PluginTimeouts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("app", app)))
}

func (m *Metrics) ChunkOutcome(ctx context.Context, outcome string) {
	m.Chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) ExecuteCompleted(ctx context.Context, seconds float64) {
	m.ExecuteDuration.Record(ctx, seconds)
}

func (m *Metrics) CommandHandled(ctx context.Context, kind wire.CommandType, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind.String()),
		attribute.String("status", status),
	))
}

func (m *Metrics) Resolution(ctx context.Context) {
	m.Resolutions.Add(ctx, 1)
}

// CapabilityFault counts a failed host call. Unsupported capabilities are
// expected on some desktops and are not counted.
func (m *Metrics) CapabilityFault(ctx context.Context, capability string, err error) {
	if err == nil || errors.Is(err, host.ErrUnsupported) {
		return
	}
	m.CapabilityFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("capability", capability)))
}
