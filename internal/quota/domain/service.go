package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Response describes one quota grant for transport consumers.
type Response struct {
	RecordID    string          `json:"record_id"`
	Quota       string          `json:"quota"`
	Version     int             `json:"version"`
	Config      json.RawMessage `json:"config"`
	Activated   bool            `json:"activated"`
	Reason      string          `json:"reason,omitempty"`
	ActivatedAt time.Time       `json:"activated_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// SwitchRequest asks to activate a different quota.
type SwitchRequest struct {
	Quota     string     `json:"quota"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Service answers "what quota is active" and mediates quota switches.
type Service interface {
	GetUserQuota(ctx context.Context, accountID snowflake.ID) (*Response, error)
	GetUserQuotas(ctx context.Context, accountID snowflake.ID) ([]Response, error)
	SwitchUserQuota(ctx context.Context, accountID snowflake.ID, req SwitchRequest) error
	HasQuota(ctx context.Context, accountID snowflake.ID, name string) (bool, error)
}
