// Package registry holds the compiled-in catalog of feature and quota
// definitions. The catalog is validated once at process start and is
// immutable afterwards.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates definition behavior: quotas are mutually
// exclusive per account, features are additive.
type Kind string

const (
	KindFeature Kind = "feature"
	KindQuota   Kind = "quota"
)

// Known definition names. Config payload shape is keyed by name.
const (
	QuotaPersonalWorkspace = "personal_workspace"
	QuotaTeamWorkspace     = "team_workspace"
	FeatureAIAssistant     = "ai_assistant"
	FeatureEarlyAccess     = "early_access"
)

// WorkspaceQuotaConfig is the payload for workspace quota definitions.
type WorkspaceQuotaConfig struct {
	StorageQuotaGB int `json:"storage_quota_gb"`
	MemberLimit    int `json:"member_limit"`
	HistoryDays    int `json:"history_days"`
}

// AIAssistantConfig is the payload for the ai_assistant feature.
type AIAssistantConfig struct {
	DailyMessageLimit int    `json:"daily_message_limit"`
	ModelTier         string `json:"model_tier"`
}

// EarlyAccessConfig is the payload for the early_access feature.
type EarlyAccessConfig struct {
	Channels []string `json:"channels"`
}

// Entry is one immutable catalog row. New versions of a name are
// appended, old versions are never replaced so historical grants stay
// interpretable.
type Entry struct {
	Name    string
	Kind    Kind
	Version int
	Config  any
}

// MarshalConfig serializes the typed payload for persistence.
func (e Entry) MarshalConfig() ([]byte, error) {
	return json.Marshal(e.Config)
}

// Registry is the validated, read-only catalog.
type Registry struct {
	entries []Entry
}

// Entries returns the catalog rows in declaration order.
func (r Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ErrConfigValidation marks a malformed built-in definition. It is
// fatal at startup and never recoverable at runtime.
var ErrConfigValidation = errors.New("config_validation")

// Load validates the built-in catalog and returns the registry.
func Load() (Registry, error) {
	entries := catalog()

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			return Registry{}, err
		}
		key := fmt.Sprintf("%s@%d", entry.Name, entry.Version)
		if _, ok := seen[key]; ok {
			return Registry{}, fmt.Errorf("%w: duplicate definition %s", ErrConfigValidation, key)
		}
		seen[key] = struct{}{}
	}

	return Registry{entries: entries}, nil
}

func validateEntry(entry Entry) error {
	if entry.Version <= 0 {
		return fmt.Errorf("%w: %s has non-positive version %d", ErrConfigValidation, entry.Name, entry.Version)
	}

	switch entry.Name {
	case QuotaPersonalWorkspace, QuotaTeamWorkspace:
		if entry.Kind != KindQuota {
			return fmt.Errorf("%w: %s must be a quota", ErrConfigValidation, entry.Name)
		}
		cfg, ok := entry.Config.(WorkspaceQuotaConfig)
		if !ok {
			return fmt.Errorf("%w: %s config must be WorkspaceQuotaConfig", ErrConfigValidation, entry.Name)
		}
		if cfg.StorageQuotaGB <= 0 || cfg.MemberLimit <= 0 || cfg.HistoryDays <= 0 {
			return fmt.Errorf("%w: %s limits must be positive", ErrConfigValidation, entry.Name)
		}
	case FeatureAIAssistant:
		if entry.Kind != KindFeature {
			return fmt.Errorf("%w: %s must be a feature", ErrConfigValidation, entry.Name)
		}
		cfg, ok := entry.Config.(AIAssistantConfig)
		if !ok {
			return fmt.Errorf("%w: %s config must be AIAssistantConfig", ErrConfigValidation, entry.Name)
		}
		if cfg.DailyMessageLimit <= 0 || cfg.ModelTier == "" {
			return fmt.Errorf("%w: %s config is incomplete", ErrConfigValidation, entry.Name)
		}
	case FeatureEarlyAccess:
		if entry.Kind != KindFeature {
			return fmt.Errorf("%w: %s must be a feature", ErrConfigValidation, entry.Name)
		}
		cfg, ok := entry.Config.(EarlyAccessConfig)
		if !ok {
			return fmt.Errorf("%w: %s config must be EarlyAccessConfig", ErrConfigValidation, entry.Name)
		}
		if len(cfg.Channels) == 0 {
			return fmt.Errorf("%w: %s needs at least one channel", ErrConfigValidation, entry.Name)
		}
	default:
		return fmt.Errorf("%w: unknown definition name %q", ErrConfigValidation, entry.Name)
	}

	return nil
}
