package registry

// catalog returns the built-in definitions. Append new versions here;
// never edit or remove an existing row once it has shipped.
func catalog() []Entry {
	return []Entry{
		{
			Name:    QuotaPersonalWorkspace,
			Kind:    KindQuota,
			Version: 1,
			Config: WorkspaceQuotaConfig{
				StorageQuotaGB: 5,
				MemberLimit:    1,
				HistoryDays:    30,
			},
		},
		{
			Name:    QuotaTeamWorkspace,
			Kind:    KindQuota,
			Version: 1,
			Config: WorkspaceQuotaConfig{
				StorageQuotaGB: 100,
				MemberLimit:    100,
				HistoryDays:    365,
			},
		},
		{
			Name:    FeatureAIAssistant,
			Kind:    KindFeature,
			Version: 1,
			Config: AIAssistantConfig{
				DailyMessageLimit: 200,
				ModelTier:         "standard",
			},
		},
		{
			Name:    FeatureEarlyAccess,
			Kind:    KindFeature,
			Version: 1,
			Config: EarlyAccessConfig{
				Channels: []string{"beta"},
			},
		},
	}
}
