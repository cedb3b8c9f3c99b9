package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	definitiondomain "github.com/entitlehq/entitled/internal/definition/domain"
	"go.uber.org/fx"
)

// Definitions are immutable once seeded, so a long TTL is safe; the
// TTL only bounds memory for ids that stop being referenced.
const defaultDefinitionTTL = 30 * time.Minute

// DefinitionCache stores resolved catalog rows by surrogate id for the
// entitlement read path.
type DefinitionCache interface {
	Get(id snowflake.ID) (*definitiondomain.FeatureDefinition, bool)
	Set(def *definitiondomain.FeatureDefinition)
}

type definitionCache struct {
	defs Cache[snowflake.ID, *definitiondomain.FeatureDefinition]
	ttl  time.Duration
}

// NewDefinitionCache returns an in-memory definition cache.
func NewDefinitionCache() DefinitionCache {
	return &definitionCache{
		defs: NewTTLCache[snowflake.ID, *definitiondomain.FeatureDefinition](),
		ttl:  defaultDefinitionTTL,
	}
}

func (c *definitionCache) Get(id snowflake.ID) (*definitiondomain.FeatureDefinition, bool) {
	return c.defs.Get(id)
}

func (c *definitionCache) Set(def *definitiondomain.FeatureDefinition) {
	if def == nil || def.ID == 0 {
		return
	}
	c.defs.Set(def.ID, def, c.ttl)
}

// Module provides shared caches to the fx graph.
var Module = fx.Module("cache",
	fx.Provide(NewDefinitionCache),
)
