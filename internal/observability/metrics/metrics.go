package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. All record methods
// are safe on a nil receiver.
type Metrics struct {
	quotaSwitches   metric.Int64Counter
	featureGrants   metric.Int64Counter
	featureRevokes  metric.Int64Counter
	lifecycleEvents metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "entitled"
	}
	meter := provider.Meter(name)

	quotaSwitches, err := meter.Int64Counter("entitled_quota_switches_total")
	if err != nil {
		return nil, err
	}
	featureGrants, err := meter.Int64Counter("entitled_feature_grants_total")
	if err != nil {
		return nil, err
	}
	featureRevokes, err := meter.Int64Counter("entitled_feature_revokes_total")
	if err != nil {
		return nil, err
	}
	lifecycleEvents, err := meter.Int64Counter("entitled_lifecycle_events_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		quotaSwitches:   quotaSwitches,
		featureGrants:   featureGrants,
		featureRevokes:  featureRevokes,
		lifecycleEvents: lifecycleEvents,
	}, nil
}

// RecordQuotaSwitch increments quota switch counts.
func (m *Metrics) RecordQuotaSwitch(ctx context.Context, quota string) {
	if m == nil {
		return
	}
	m.quotaSwitches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("quota", strings.TrimSpace(quota)),
	))
}

// RecordFeatureGrant increments feature grant counts.
func (m *Metrics) RecordFeatureGrant(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	m.featureGrants.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feature", strings.TrimSpace(feature)),
	))
}

// RecordFeatureRevoke increments feature revocation counts.
func (m *Metrics) RecordFeatureRevoke(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	m.featureRevokes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feature", strings.TrimSpace(feature)),
	))
}

// RecordLifecycleEvent increments processed lifecycle event counts.
func (m *Metrics) RecordLifecycleEvent(ctx context.Context, eventType, status string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
