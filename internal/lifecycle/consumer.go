// Package lifecycle reacts to account and subscription lifecycle
// events by adjusting entitlements. Delivery is at-least-once, so
// every handler is idempotent.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/entitlehq/entitled/internal/entitlement/domain"
	"github.com/entitlehq/entitled/internal/events"
	featuredomain "github.com/entitlehq/entitled/internal/feature/domain"
	obsmetrics "github.com/entitlehq/entitled/internal/observability/metrics"
	quotadomain "github.com/entitlehq/entitled/internal/quota/domain"
	"github.com/entitlehq/entitled/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const batchSize = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	QuotaSvc   quotadomain.Service
	FeatureSvc featuredomain.Service
	Ledger     entitlementdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Consumer struct {
	db         *gorm.DB
	log        *zap.Logger
	quotaSvc   quotadomain.Service
	featureSvc featuredomain.Service
	ledger     entitlementdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewConsumer(p Params) *Consumer {
	return &Consumer{
		db:         p.DB,
		log:        p.Log.Named("lifecycle.consumer"),
		quotaSvc:   p.QuotaSvc,
		featureSvc: p.FeatureSvc,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

type eventRow struct {
	ID        snowflake.ID   `gorm:"column:id"`
	AccountID snowflake.ID   `gorm:"column:account_id"`
	EventType string         `gorm:"column:event_type"`
	Payload   datatypes.JSON `gorm:"column:payload"`
}

type subscriptionPayload struct {
	AccountID string `json:"account_id"`
	Plan      string `json:"plan"`
	Recurring bool   `json:"recurring"`
	// NewPlan distinguishes a true cancellation (empty) from a
	// cancellation fired as a side effect of replacing the plan.
	NewPlan string `json:"new_plan"`
}

// ProcessPending handles the oldest unprocessed events. A handler
// failure leaves the event unprocessed for the next poll.
func (c *Consumer) ProcessPending(ctx context.Context) error {
	var rows []eventRow
	err := c.db.WithContext(ctx).Raw(
		`SELECT id, account_id, event_type, payload FROM entitlement_events
		 WHERE processed = false
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		batchSize,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := c.processEvent(ctx, row); err != nil {
			c.log.Error("failed to process lifecycle event",
				zap.Error(err),
				zap.String("event_id", row.ID.String()),
				zap.String("event_type", row.EventType),
				zap.String("account_id", row.AccountID.String()),
			)
			c.obsMetrics.RecordLifecycleEvent(ctx, row.EventType, "error")
			continue
		}
		c.obsMetrics.RecordLifecycleEvent(ctx, row.EventType, "ok")
	}

	return nil
}

func (c *Consumer) processEvent(ctx context.Context, row eventRow) error {
	if err := c.dispatch(ctx, row); err != nil {
		return err
	}
	return c.markProcessed(ctx, row.ID)
}

func (c *Consumer) dispatch(ctx context.Context, row eventRow) error {
	switch row.EventType {
	case events.AccountCreatedTopic:
		return c.handleAccountCreated(ctx, row.AccountID)
	case events.AccountDeletedTopic:
		return c.handleAccountDeleted(ctx, row.AccountID)
	case events.SubscriptionActivatedTopic:
		payload, err := parseSubscriptionPayload(row.Payload)
		if err != nil {
			return err
		}
		return c.handleSubscriptionActivated(ctx, row.AccountID, payload)
	case events.SubscriptionCanceledTopic:
		payload, err := parseSubscriptionPayload(row.Payload)
		if err != nil {
			return err
		}
		return c.handleSubscriptionCanceled(ctx, row.AccountID, payload)
	default:
		// Unknown events are marked processed so they do not wedge the
		// queue; the broader platform shares this event stream.
		c.log.Warn("skipping unknown event type", zap.String("event_type", row.EventType))
		return nil
	}
}

func (c *Consumer) handleAccountCreated(ctx context.Context, accountID snowflake.ID) error {
	return c.quotaSvc.SwitchUserQuota(ctx, accountID, quotadomain.SwitchRequest{
		Quota:  registry.QuotaPersonalWorkspace,
		Reason: "sign up",
	})
}

func (c *Consumer) handleAccountDeleted(ctx context.Context, accountID snowflake.ID) error {
	return c.ledger.ExpireAll(ctx, accountID, "account deleted")
}

func (c *Consumer) handleSubscriptionActivated(ctx context.Context, accountID snowflake.ID, payload subscriptionPayload) error {
	switch payload.Plan {
	case events.PlanAI:
		return c.featureSvc.GrantFeatures(ctx, accountID, featuredomain.GrantRequest{
			Features: []string{registry.FeatureAIAssistant},
			Reason:   "subscription activated",
		})
	case events.PlanPro:
		return c.quotaSvc.SwitchUserQuota(ctx, accountID, quotadomain.SwitchRequest{
			Quota:  registry.QuotaTeamWorkspace,
			Reason: "subscription activated",
		})
	default:
		c.log.Warn("activation for unknown plan",
			zap.String("account_id", accountID.String()),
			zap.String("plan", payload.Plan),
		)
		return nil
	}
}

// handleSubscriptionCanceled downgrades only on a true cancellation.
// Switching to a non-recurring plan fires a cancellation for the old
// plan as a side effect; in that case new_plan names the replacement
// and the entitlement must stay.
func (c *Consumer) handleSubscriptionCanceled(ctx context.Context, accountID snowflake.ID, payload subscriptionPayload) error {
	switch payload.Plan {
	case events.PlanAI:
		return c.featureSvc.RevokeFeature(ctx, accountID, registry.FeatureAIAssistant)
	case events.PlanPro:
		if strings.TrimSpace(payload.NewPlan) != "" {
			c.log.Info("cancellation superseded by plan change, keeping entitlement",
				zap.String("account_id", accountID.String()),
				zap.String("new_plan", payload.NewPlan),
			)
			return nil
		}
		return c.quotaSvc.SwitchUserQuota(ctx, accountID, quotadomain.SwitchRequest{
			Quota:  registry.QuotaPersonalWorkspace,
			Reason: "subscription canceled",
		})
	default:
		c.log.Warn("cancellation for unknown plan",
			zap.String("account_id", accountID.String()),
			zap.String("plan", payload.Plan),
		)
		return nil
	}
}

func (c *Consumer) markProcessed(ctx context.Context, eventID snowflake.ID) error {
	return c.db.WithContext(ctx).Exec(
		`UPDATE entitlement_events SET processed = true, processed_at = ? WHERE id = ?`,
		time.Now().UTC(),
		eventID,
	).Error
}

func parseSubscriptionPayload(raw datatypes.JSON) (subscriptionPayload, error) {
	var payload subscriptionPayload
	if len(raw) == 0 {
		return payload, errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("decode subscription payload: %w", err)
	}
	if payload.Plan == "" {
		return payload, errors.New("missing plan")
	}
	return payload, nil
}
