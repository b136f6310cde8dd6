package driver

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/model"
)

// EntityFromRecord pulls the node bound to alias out of a record and
// rebuilds the entity. Returns false when the alias is unbound or not
// a node (e.g. OPTIONAL MATCH misses).
func EntityFromRecord(rec *neo4j.Record, alias string) (model.EntityRecord, bool) {
	v, ok := rec.Get(alias)
	if !ok || v == nil {
		return model.EntityRecord{}, false
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return model.EntityRecord{}, false
	}
	return EntityFromProps(node.Props), true
}

// EntityFromProps rebuilds an EntityRecord from raw node properties.
// Missing or mistyped values fall back to zero values rather than
// failing the whole read.
func EntityFromProps(props map[string]interface{}) model.EntityRecord {
	rec := model.EntityRecord{
		UUID:           getString(props, "uuid"),
		GroupID:        getString(props, "group_id"),
		Kind:           model.Kind(getString(props, "kind")),
		Name:           getString(props, "name"),
		Email:          getString(props, "email"),
		Role:           getString(props, "role"),
		Affiliation:    getString(props, "affiliation"),
		Domain:         getString(props, "domain"),
		Industry:       getString(props, "industry"),
		Aliases:        getStringSlice(props, "aliases"),
		Confidence:     getFloat(props, "confidence"),
		Corroborations: getInt(props, "corroborations"),
		AIConfidence:   getFloat(props, "ai_confidence"),
		CreatedAt:      getTime(props, "created_at"),
		UpdatedAt:      getTime(props, "updated_at"),
	}
	for _, s := range getStringSlice(props, "sources") {
		rec.Sources = append(rec.Sources, model.Source(s))
	}
	return rec
}

// EntityProps flattens an EntityRecord into query parameters. Timestamps
// are stored as RFC3339 strings so records round-trip through Memgraph
// without driver-specific temporal types.
func EntityProps(rec model.EntityRecord) map[string]interface{} {
	sources := make([]string, 0, len(rec.Sources))
	for _, s := range rec.Sources {
		sources = append(sources, string(s))
	}
	aliases := rec.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return map[string]interface{}{
		"uuid":           rec.UUID,
		"group_id":       rec.GroupID,
		"kind":           string(rec.Kind),
		"name":           rec.Name,
		"email":          rec.Email,
		"role":           rec.Role,
		"affiliation":    rec.Affiliation,
		"domain":         rec.Domain,
		"industry":       rec.Industry,
		"aliases":        aliases,
		"confidence":     rec.Confidence,
		"corroborations": rec.Corroborations,
		"ai_confidence":  rec.AIConfidence,
		"sources":        sources,
		"created_at":     rec.CreatedAt.Format(time.RFC3339),
		"updated_at":     rec.UpdatedAt.Format(time.RFC3339),
	}
}

// FlagFromRecord pulls a :ReviewFlag node out of a record. Flags
// persist only in the flagged state.
func FlagFromRecord(rec *neo4j.Record, alias string) (model.MergeDecision, bool) {
	v, ok := rec.Get(alias)
	if !ok || v == nil {
		return model.MergeDecision{}, false
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return model.MergeDecision{}, false
	}
	props := node.Props
	return model.MergeDecision{
		UUID:          getString(props, "uuid"),
		GroupID:       getString(props, "group_id"),
		Kind:          model.Kind(getString(props, "kind")),
		State:         model.StateFlaggedForReview,
		PrimaryUUID:   getString(props, "primary_uuid"),
		SecondaryUUID: getString(props, "secondary_uuid"),
		Score:         getFloat(props, "score"),
		Method:        model.MatchMethod(getString(props, "method")),
		Reason:        getString(props, "reason"),
		CreatedAt:     getTime(props, "created_at"),
	}, true
}

// RecordString reads a string column off a record, "" when absent.
func RecordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func RecordFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func RecordInt(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func getString(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func getStringSlice(props map[string]interface{}, key string) []string {
	switch raw := props[key].(type) {
	case []string:
		out := make([]string, len(raw))
		copy(out, raw)
		return out
	case []interface{}:
		var out []string
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getFloat(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func getInt(props map[string]interface{}, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func getTime(props map[string]interface{}, key string) time.Time {
	s, ok := props[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
