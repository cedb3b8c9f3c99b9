package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service mutates and reads the activation ledger. Every multi-step
// mutation commits atomically; a failure leaves the ledger unchanged.
type Service interface {
	// GrantQuota activates the latest version of the named quota for
	// the account, deactivating any other active quota in the same
	// transaction. Granting an already-active quota is a no-op.
	GrantQuota(ctx context.Context, accountID snowflake.ID, quotaName, reason string, expiredAt *time.Time) error

	// GrantFeatures activates the latest version of each named
	// feature. Names already active are skipped individually; one
	// duplicate never fails the batch.
	GrantFeatures(ctx context.Context, accountID snowflake.ID, names []string, reason string) error

	// RevokeFeature deactivates all active records for the name.
	RevokeFeature(ctx context.Context, accountID snowflake.ID, name string) error

	// CurrentQuota returns the single active quota grant, or
	// ErrNoActiveQuota.
	CurrentQuota(ctx context.Context, accountID snowflake.ID) (*Grant, error)

	// QuotaHistory returns all quota grants in insertion order,
	// omitting records whose definition no longer resolves.
	QuotaHistory(ctx context.Context, accountID snowflake.ID) ([]Grant, error)

	// ActiveFeatures returns all feature grants currently in effect.
	ActiveFeatures(ctx context.Context, accountID snowflake.ID) ([]Grant, error)

	// HasActive reports whether an active, non-expired grant exists
	// for the named definition (quota or feature).
	HasActive(ctx context.Context, accountID snowflake.ID, name string) (bool, error)

	// ExpireAll deactivates every active grant for the account.
	ExpireAll(ctx context.Context, accountID snowflake.ID, reason string) error
}
