package registry

import (
	"errors"
	"testing"
)

func TestLoadValidatesCatalog(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("expected built-in catalog to load, got %v", err)
	}

	entries := reg.Entries()
	if len(entries) == 0 {
		t.Fatal("expected a non-empty catalog")
	}

	for _, entry := range entries {
		if entry.Version <= 0 {
			t.Fatalf("entry %s has invalid version %d", entry.Name, entry.Version)
		}
		if _, err := entry.MarshalConfig(); err != nil {
			t.Fatalf("entry %s config does not marshal: %v", entry.Name, err)
		}
	}
}

func TestValidateEntryRejectsMalformedConfig(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
	}{
		{
			name: "wrong config type",
			entry: Entry{
				Name:    QuotaPersonalWorkspace,
				Kind:    KindQuota,
				Version: 1,
				Config:  AIAssistantConfig{DailyMessageLimit: 1, ModelTier: "standard"},
			},
		},
		{
			name: "non-positive limit",
			entry: Entry{
				Name:    QuotaTeamWorkspace,
				Kind:    KindQuota,
				Version: 1,
				Config:  WorkspaceQuotaConfig{StorageQuotaGB: 0, MemberLimit: 10, HistoryDays: 30},
			},
		},
		{
			name: "kind mismatch",
			entry: Entry{
				Name:    FeatureEarlyAccess,
				Kind:    KindQuota,
				Version: 1,
				Config:  EarlyAccessConfig{Channels: []string{"beta"}},
			},
		},
		{
			name: "unknown name",
			entry: Entry{
				Name:    "mystery_feature",
				Kind:    KindFeature,
				Version: 1,
				Config:  EarlyAccessConfig{Channels: []string{"beta"}},
			},
		},
		{
			name: "zero version",
			entry: Entry{
				Name:    FeatureAIAssistant,
				Kind:    KindFeature,
				Version: 0,
				Config:  AIAssistantConfig{DailyMessageLimit: 1, ModelTier: "standard"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateEntry(tc.entry)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.Is(err, ErrConfigValidation) {
				t.Fatalf("expected ErrConfigValidation, got %v", err)
			}
		})
	}
}
