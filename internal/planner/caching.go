package planner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"convoke"
	"convoke/internal/cache"
)

// CachingPlanner wraps a Planner with a plan cache keyed by query and tool
// catalog. Identical queries against an unchanged catalog reuse the prior
// plan instead of another LLM round-trip.
type CachingPlanner struct {
	inner  convoke.Planner
	cache  cache.Store
	logger *zap.Logger
}

// NewCachingPlanner wraps inner with the given cache.
func NewCachingPlanner(inner convoke.Planner, store cache.Store, logger *zap.Logger) *CachingPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingPlanner{
		inner:  inner,
		cache:  store,
		logger: logger,
	}
}

// GeneratePlan implements the convoke.Planner interface.
func (p *CachingPlanner) GeneratePlan(ctx context.Context, query string, catalog []convoke.ToolDescriptor) (*convoke.QueryPlan, error) {
	key := p.cacheKey(query, catalog)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		if plan, ok := cached.(*convoke.QueryPlan); ok {
			p.logger.Debug("plan cache hit", zap.String("key", key))
			clone := *plan
			return &clone, nil
		}
	}

	plan, err := p.inner.GeneratePlan(ctx, query, catalog)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, plan); err != nil {
		p.logger.Warn("plan cache store failed", zap.String("key", key), zap.Error(err))
	}
	return plan, nil
}

// cacheKey creates a stable key for caching planner results.
func (p *CachingPlanner) cacheKey(query string, catalog []convoke.ToolDescriptor) string {
	names := make([]string, len(catalog))
	for i, tool := range catalog {
		names[i] = tool.Name
	}
	cacheable := struct {
		Query string   `json:"query"`
		Tools []string `json:"tools"`
	}{
		Query: query,
		Tools: names,
	}

	data, err := json.Marshal(cacheable)
	if err != nil {
		// Fallback to a simpler key if marshalling fails
		return "planner:" + query
	}
	hasher := sha1.New()
	hasher.Write(data)
	return "planner:" + hex.EncodeToString(hasher.Sum(nil))
}
