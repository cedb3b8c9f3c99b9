package lifecycle

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	definitionrepo "github.com/entitlehq/entitled/internal/definition/repository"
	entitlementdomain "github.com/entitlehq/entitled/internal/entitlement/domain"
	entitlementrepo "github.com/entitlehq/entitled/internal/entitlement/repository"
	entitlementservice "github.com/entitlehq/entitled/internal/entitlement/service"
	"github.com/entitlehq/entitled/internal/events"
	eventsdomain "github.com/entitlehq/entitled/internal/events/domain"
	featureservice "github.com/entitlehq/entitled/internal/feature/service"
	quotaservice "github.com/entitlehq/entitled/internal/quota/service"
	"github.com/entitlehq/entitled/internal/registry"
	"github.com/entitlehq/entitled/internal/seed"
	"github.com/entitlehq/entitled/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testHarness struct {
	db       *gorm.DB
	genID    *snowflake.Node
	consumer *Consumer
	outbox   *events.Outbox
	ledger   entitlementdomain.Service
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	gdb, err := db.NewTest()
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&definitiondomain.FeatureDefinition{},
		&entitlementdomain.ActivationRecord{},
		&eventsdomain.EntitlementEvent{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reg, err := registry.Load()
	require.NoError(t, err)
	defs, err := seed.BuildDefinitions(genID, reg.Entries())
	require.NoError(t, err)
	require.NoError(t, definitionrepo.Provide().EnsureSeeded(context.Background(), gdb, defs))

	log := zap.NewNop()
	ledger := entitlementservice.New(entitlementservice.Params{
		DB:    gdb,
		Log:   log,
		GenID: genID,
		Repo:  entitlementrepo.Provide(),
		Defs:  definitionrepo.Provide(),
	})
	quotaSvc := quotaservice.New(quotaservice.Params{Log: log, Ledger: ledger})
	featureSvc := featureservice.New(featureservice.Params{Log: log, Ledger: ledger})

	consumer := NewConsumer(Params{
		DB:         gdb,
		Log:        log,
		QuotaSvc:   quotaSvc,
		FeatureSvc: featureSvc,
		Ledger:     ledger,
	})

	return &testHarness{
		db:       gdb,
		genID:    genID,
		consumer: consumer,
		outbox:   events.NewOutbox(gdb, log, genID),
		ledger:   ledger,
	}
}

func (h *testHarness) enqueue(t *testing.T, accountID snowflake.ID, eventType string, payload map[string]any) {
	t.Helper()
	require.NoError(t, h.outbox.Enqueue(context.Background(), events.Event{
		AccountID: accountID,
		Type:      eventType,
		Payload:   payload,
	}))
}

func (h *testHarness) process(t *testing.T) {
	t.Helper()
	require.NoError(t, h.consumer.ProcessPending(context.Background()))
}

func (h *testHarness) currentQuotaName(t *testing.T, accountID snowflake.ID) string {
	t.Helper()
	grant, err := h.ledger.CurrentQuota(context.Background(), accountID)
	require.NoError(t, err)
	return grant.Definition.Name
}

func (h *testHarness) pendingEventCount(t *testing.T) int {
	t.Helper()
	var count int
	require.NoError(t, h.db.Raw(
		`SELECT COUNT(*) FROM entitlement_events WHERE processed = false`,
	).Scan(&count).Error)
	return count
}

func TestAccountCreatedGrantsPersonalWorkspace(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()

	h.enqueue(t, accountID, events.AccountCreatedTopic, nil)
	h.process(t)

	assert.Equal(t, registry.QuotaPersonalWorkspace, h.currentQuotaName(t, accountID))
	assert.Equal(t, 0, h.pendingEventCount(t))
}

func TestAccountDeletedExpiresAllGrants(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()
	ctx := context.Background()

	require.NoError(t, h.ledger.GrantQuota(ctx, accountID, registry.QuotaPersonalWorkspace, "sign up", nil))
	require.NoError(t, h.ledger.GrantFeatures(ctx, accountID, []string{registry.FeatureAIAssistant}, "test"))

	h.enqueue(t, accountID, events.AccountDeletedTopic, nil)
	h.process(t)

	_, err := h.ledger.CurrentQuota(ctx, accountID)
	assert.ErrorIs(t, err, entitlementdomain.ErrNoActiveQuota)

	features, err := h.ledger.ActiveFeatures(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestProSubscriptionLifecycle(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()

	h.enqueue(t, accountID, events.AccountCreatedTopic, nil)
	h.enqueue(t, accountID, events.SubscriptionActivatedTopic, map[string]any{
		"plan": events.PlanPro, "recurring": true,
	})
	h.process(t)
	assert.Equal(t, registry.QuotaTeamWorkspace, h.currentQuotaName(t, accountID))

	h.enqueue(t, accountID, events.SubscriptionCanceledTopic, map[string]any{
		"plan": events.PlanPro,
	})
	h.process(t)
	assert.Equal(t, registry.QuotaPersonalWorkspace, h.currentQuotaName(t, accountID))
}

func TestProCancellationWithReplacementPlanKeepsQuota(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()

	h.enqueue(t, accountID, events.AccountCreatedTopic, nil)
	h.enqueue(t, accountID, events.SubscriptionActivatedTopic, map[string]any{
		"plan": events.PlanPro, "recurring": true,
	})
	h.enqueue(t, accountID, events.SubscriptionCanceledTopic, map[string]any{
		"plan": events.PlanPro, "new_plan": "lifetime",
	})
	h.process(t)

	assert.Equal(t, registry.QuotaTeamWorkspace, h.currentQuotaName(t, accountID))
	assert.Equal(t, 0, h.pendingEventCount(t))
}

func TestAISubscriptionLifecycle(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()
	ctx := context.Background()

	h.enqueue(t, accountID, events.SubscriptionActivatedTopic, map[string]any{
		"plan": events.PlanAI, "recurring": true,
	})
	h.process(t)

	has, err := h.ledger.HasActive(ctx, accountID, registry.FeatureAIAssistant)
	require.NoError(t, err)
	assert.True(t, has)

	h.enqueue(t, accountID, events.SubscriptionCanceledTopic, map[string]any{
		"plan": events.PlanAI,
	})
	h.process(t)

	has, err = h.ledger.HasActive(ctx, accountID, registry.FeatureAIAssistant)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestUnknownEventTypeIsDrained(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()

	h.enqueue(t, accountID, "invoice.finalized", map[string]any{"total": 42})
	h.process(t)

	assert.Equal(t, 0, h.pendingEventCount(t))
}

func TestMalformedPayloadStaysPending(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()

	// Subscription event without a plan cannot be dispatched.
	h.enqueue(t, accountID, events.SubscriptionActivatedTopic, map[string]any{"recurring": true})
	h.process(t)

	assert.Equal(t, 1, h.pendingEventCount(t))
}

func TestDuplicateDedupeKeyCollapses(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()
	ctx := context.Background()

	event := events.Event{
		AccountID: accountID,
		Type:      events.AccountCreatedTopic,
		DedupeKey: "webhook-abc-123",
	}
	require.NoError(t, h.outbox.Enqueue(ctx, event))
	require.NoError(t, h.outbox.Enqueue(ctx, event))

	var count int
	require.NoError(t, h.db.Raw(`SELECT COUNT(*) FROM entitlement_events`).Scan(&count).Error)
	assert.Equal(t, 1, count)
}

func TestProcessedEventsAreNotReplayed(t *testing.T) {
	h := newTestHarness(t)
	accountID := h.genID.Generate()
	ctx := context.Background()

	h.enqueue(t, accountID, events.AccountCreatedTopic, nil)
	h.process(t)

	// Manually downgrade, then poll again: the consumed event must not
	// re-grant the personal workspace.
	require.NoError(t, h.ledger.GrantQuota(ctx, accountID, registry.QuotaTeamWorkspace, "upgrade", nil))
	h.process(t)

	assert.Equal(t, registry.QuotaTeamWorkspace, h.currentQuotaName(t, accountID))

	var marked int
	require.NoError(t, h.db.Raw(
		`SELECT COUNT(*) FROM entitlement_events
		 WHERE event_type = ? AND processed = true AND processed_at IS NOT NULL`,
		events.AccountCreatedTopic,
	).Scan(&marked).Error)
	assert.Equal(t, 1, marked)
}
