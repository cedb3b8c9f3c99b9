package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Response describes one active feature grant.
type Response struct {
	RecordID  string          `json:"record_id"`
	Feature   string          `json:"feature"`
	Version   int             `json:"version"`
	Config    json.RawMessage `json:"config"`
	Reason    string          `json:"reason,omitempty"`
	GrantedAt time.Time       `json:"granted_at"`
}

// GrantRequest asks to activate additive features.
type GrantRequest struct {
	Features []string `json:"features"`
	Reason   string   `json:"reason,omitempty"`
}

// Service mediates additive (non-exclusive) feature grants.
type Service interface {
	GetUserFeatures(ctx context.Context, accountID snowflake.ID) ([]Response, error)
	GrantFeatures(ctx context.Context, accountID snowflake.ID, req GrantRequest) error
	RevokeFeature(ctx context.Context, accountID snowflake.ID, name string) error
	HasFeature(ctx context.Context, accountID snowflake.ID, name string) (bool, error)
}
