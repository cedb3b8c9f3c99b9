package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewBuildsInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "entitled-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("expected instruments to build, got %v", err)
	}
	if m == nil {
		t.Fatal("expected metrics instance")
	}

	ctx := context.Background()
	m.RecordQuotaSwitch(ctx, "team_workspace")
	m.RecordFeatureGrant(ctx, "ai_assistant")
	m.RecordFeatureRevoke(ctx, "ai_assistant")
	m.RecordLifecycleEvent(ctx, "user.subscription.activated", "ok")
}

func TestRecordOnNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordQuotaSwitch(ctx, "team_workspace")
	m.RecordFeatureGrant(ctx, "ai_assistant")
	m.RecordFeatureRevoke(ctx, "ai_assistant")
	m.RecordLifecycleEvent(ctx, "account.created", "ok")
}

func TestNewProviderDisabledUsesNoop(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("expected noop provider, got %v", err)
	}
	if provider == nil {
		t.Fatal("expected a meter provider")
	}
}
