// Package tools provides the built-in tool corpus: keyword search and
// filtering over ingested items, entity search, and relation exploration.
// The handlers here are mock implementations; the real data path is wired
// in by the embedding application.
package tools

import (
	"context"
	"fmt"
	"time"

	"convoke"
)

// SetupTools creates and returns all built-in tools keyed by name.
func SetupTools() map[string]convoke.Tool {
	return map[string]convoke.Tool{
		"search_items": NewFuncTool(
			"search_items",
			SearchItems,
			WithDescription("Search Hacker News items by keywords, author, item type, and other filters"),
			WithCategory(convoke.CategoryDataQuery),
			WithSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search keywords or phrases to find in item titles and text",
						"minLength":   1,
						"maxLength":   1000,
					},
					"author": map[string]interface{}{
						"type":        "string",
						"description": "Filter by specific author username",
						"minLength":   1,
						"maxLength":   50,
					},
					"item_type": map[string]interface{}{
						"type":        "string",
						"description": "Filter by item type",
						"enum":        []interface{}{"story", "comment", "job", "poll"},
					},
					"min_score": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum score threshold for items",
						"minimum":     0,
						"maximum":     10000,
					},
					"time_range": map[string]interface{}{
						"type":        "object",
						"description": "Date range for filtering items",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results to return (1-1000)",
						"minimum":     1,
						"maximum":     1000,
					},
				},
				"required": []interface{}{"query"},
			}),
			WithExamples(
				convoke.ToolExample{
					Description: "Search for AI-related discussions",
					Parameters: map[string]interface{}{
						"query":     "artificial intelligence",
						"min_score": 10,
						"limit":     50,
					},
					ExpectedResult: "Trending AI discussions with good engagement",
				},
				convoke.ToolExample{
					Description: "Find posts by specific author",
					Parameters: map[string]interface{}{
						"query":     "startup",
						"author":    "pg",
						"item_type": "story",
					},
					ExpectedResult: "Stories by the given author on the topic",
				},
			),
			WithConstraints(convoke.ToolConstraints{
				MaxExecutionTimeMS:     5000,
				MaxResultSize:          1000,
				RateLimitPerMinute:     60,
				RequiresAuthentication: false,
			}),
			WithTags("search", "items", "hacker-news"),
		),
		"filter_items": NewFuncTool(
			"filter_items",
			FilterItems,
			WithDescription("Filter HN items by score, time range, comment count, and other criteria"),
			WithCategory(convoke.CategoryDataQuery),
			WithSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"score_range": map[string]interface{}{
						"type":        "object",
						"description": "Filter by score range (min and max)",
						"properties": map[string]interface{}{
							"min": map[string]interface{}{"type": "integer"},
							"max": map[string]interface{}{"type": "integer"},
						},
					},
					"time_range": map[string]interface{}{
						"type":        "object",
						"description": "Filter by time range",
						"properties": map[string]interface{}{
							"start": map[string]interface{}{"type": "string", "format": "date-time"},
							"end":   map[string]interface{}{"type": "string", "format": "date-time"},
						},
					},
				},
			}),
			WithConstraints(convoke.ToolConstraints{
				MaxExecutionTimeMS:     3000,
				MaxResultSize:          1000,
				RateLimitPerMinute:     100,
				RequiresAuthentication: false,
			}),
			WithTags("filter", "items"),
		),
		"search_entities": NewFuncTool(
			"search_entities",
			SearchEntities,
			WithDescription("Search for entities by name, type, and confidence threshold"),
			WithCategory(convoke.CategoryEntityAnalysis),
			WithSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Entity name or partial name to search for",
					},
					"entity_type": map[string]interface{}{
						"type":        "string",
						"description": "Filter by entity type",
					},
					"limit": map[string]interface{}{
						"type":    "integer",
						"minimum": 1,
						"maximum": 1000,
					},
				},
			}),
			WithConstraints(convoke.ToolConstraints{
				MaxExecutionTimeMS:     3000,
				MaxResultSize:          500,
				RateLimitPerMinute:     100,
				RequiresAuthentication: false,
			}),
			WithTags("search", "entities"),
		),
		"explore_relations": NewFuncTool(
			"explore_relations",
			ExploreRelations,
			WithDescription("Explore entity relationships by type and strength"),
			WithCategory(convoke.CategoryRelationExploration),
			WithSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"relation_type": map[string]interface{}{
						"type":        "string",
						"description": "Filter by specific relation type",
					},
					"entity_id": map[string]interface{}{
						"type":        "integer",
						"description": "Focus on relations for specific entity",
					},
					"entity_type": map[string]interface{}{
						"type":        "string",
						"description": "Focus on relations involving entities of this type",
					},
				},
			}),
			WithConstraints(convoke.ToolConstraints{
				MaxExecutionTimeMS:     4000,
				MaxResultSize:          500,
				RateLimitPerMinute:     60,
				RequiresAuthentication: false,
			}),
			WithTags("relations", "exploration"),
		),
	}
}

// SearchItems simulates a keyword search over ingested items.
func SearchItems(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	query, ok := params["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("invalid or missing query argument (expected non-empty string at key 'query')")
	}
	limit := intParam(params, "limit", 100)

	start := time.Now()
	return map[string]interface{}{
		"items":         []interface{}{},
		"total_count":   2,
		"query_time_ms": time.Since(start).Milliseconds(),
		"filters_applied": map[string]interface{}{
			"query":     query,
			"author":    params["author"],
			"item_type": params["item_type"],
			"min_score": intParam(params, "min_score", 0),
			"limit":     limit,
		},
	}, nil
}

// FilterItems simulates filtering items by score and time range.
func FilterItems(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"items":       []interface{}{},
		"total_count": 0,
		"filters_applied": map[string]interface{}{
			"score_range": params["score_range"],
			"time_range":  params["time_range"],
		},
	}, nil
}

// SearchEntities simulates an entity lookup.
func SearchEntities(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	query, _ := params["query"].(string)
	entityType, _ := params["entity_type"].(string)

	entities := []interface{}{
		map[string]interface{}{
			"name":        "OpenAI",
			"entity_type": "company",
			"confidence":  0.95,
			"mentions":    42,
		},
		map[string]interface{}{
			"name":        "DeepMind",
			"entity_type": "company",
			"confidence":  0.91,
			"mentions":    17,
		},
	}

	return map[string]interface{}{
		"entities":    entities,
		"total_count": len(entities),
		"query_applied": map[string]interface{}{
			"query":       query,
			"entity_type": entityType,
			"limit":       intParam(params, "limit", 100),
		},
	}, nil
}

// ExploreRelations simulates relation traversal between entities.
func ExploreRelations(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	relations := []interface{}{
		map[string]interface{}{
			"source_entity": "OpenAI",
			"target_entity": "Microsoft",
			"relation_type": "partnership",
			"strength":      0.8,
		},
	}

	return map[string]interface{}{
		"relations":   relations,
		"total_count": len(relations),
		"query_applied": map[string]interface{}{
			"relation_type": params["relation_type"],
			"entity_id":     params["entity_id"],
			"entity_type":   params["entity_type"],
		},
	}, nil
}

// intParam reads an integer-valued parameter, tolerating the float64 that
// JSON decoding produces.
func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
