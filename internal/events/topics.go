package events

// Inbound lifecycle event names.
const (
	AccountCreatedTopic        = "account.created"
	AccountDeletedTopic        = "account.deleted"
	SubscriptionActivatedTopic = "user.subscription.activated"
	SubscriptionCanceledTopic  = "user.subscription.canceled"
)

// Plan identifiers carried by subscription events.
const (
	PlanAI  = "ai"
	PlanPro = "pro"
)
