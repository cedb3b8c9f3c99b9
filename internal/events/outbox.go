package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/entitlehq/entitled/internal/events/domain"
	"github.com/entitlehq/entitled/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is one lifecycle event to enqueue.
type Event struct {
	AccountID snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidType    = errors.New("invalid_event_type")
)

// Outbox persists inbound lifecycle events for the polling consumer.
type Outbox struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(gdb *gorm.DB, log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		db:    gdb,
		log:   log.Named("events.outbox"),
		genID: genID,
	}
}

// Enqueue stores the event. A duplicate dedupe key is treated as
// success, so redelivered webhooks collapse into one row.
func (o *Outbox) Enqueue(ctx context.Context, event Event) error {
	return o.EnqueueTx(ctx, o.db, event)
}

// EnqueueTx stores the event using the caller's transaction handle.
func (o *Outbox) EnqueueTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if event.AccountID == 0 {
		return ErrInvalidAccount
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return ErrInvalidType
	}

	var dedupeKey *string
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		dedupeKey = &key
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	record := domain.EntitlementEvent{
		ID:        o.genID.Generate(),
		AccountID: event.AccountID,
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
		DedupeKey: dedupeKey,
		CreatedAt: time.Now().UTC(),
	}

	err := tx.WithContext(ctx).Create(&record).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		o.log.Debug("duplicate event ignored",
			zap.String("event_type", eventType),
			zap.Stringp("dedupe_key", dedupeKey),
		)
		return nil
	}
	return err
}
