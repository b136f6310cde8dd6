package core

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/lookup"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

// MockDriver is an in-memory graph: live entities, merge tombstones,
// review flags, and resolved-distinct edges, answering every query the
// pipeline issues. Resolver tests run the real pipeline against it.
type MockDriver struct {
	mu       sync.Mutex
	Nodes    map[string]map[string]interface{} // :Entity props by uuid
	Merged   map[string]string                 // tombstone uuid -> merged_into
	Flags    map[string]map[string]interface{} // :ReviewFlag props by uuid
	byPair   map[string]string                 // pair_key -> flag uuid
	Distinct map[string]string                 // pair_key -> reason
	Rewired  map[string]int                    // secondary uuid -> edges to report
	Offline  bool
	Err      error
	FailOn   string // only queries containing this substring fail
	Queries  []string
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		Nodes:    make(map[string]map[string]interface{}),
		Merged:   make(map[string]string),
		Flags:    make(map[string]map[string]interface{}),
		byPair:   make(map[string]string),
		Distinct: make(map[string]string),
		Rewired:  make(map[string]int),
	}
}

// putEntity seeds a node the way the store would write it, candidate
// keys included.
func (m *MockDriver) putEntity(rec model.EntityRecord, genericDomain func(string) bool) {
	keys := lookup.KeysFor(rec, genericDomain)
	props := driver.EntityProps(rec)
	props["name_key"] = keys.NameKey
	props["initials_key"] = keys.Initials
	props["domain_key"] = keys.Domain
	m.mu.Lock()
	m.Nodes[rec.UUID] = props
	m.mu.Unlock()
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, query)
	if m.Err != nil && (m.FailOn == "" || strings.Contains(query, m.FailOn)) {
		return neo4j.EagerResult{}, m.Err
	}

	switch query {
	case driver.SaveEntityQuery:
		uuid := params["uuid"].(string)
		if _, ok := m.Nodes[uuid]; !ok {
			m.Nodes[uuid] = map[string]interface{}{"uuid": uuid}
		}
		mergeProps(m.Nodes[uuid], params["props"].(map[string]interface{}))
		return rows([]string{"uuid"}, []interface{}{uuid}), nil

	case driver.GetEntityQuery:
		props, ok := m.Nodes[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return rows([]string{"n"}, []interface{}{node(props)}), nil

	case driver.GetEntitiesQuery:
		want := make(map[string]struct{})
		for _, uuid := range params["uuids"].([]string) {
			want[uuid] = struct{}{}
		}
		return m.entityRows(func(props map[string]interface{}) bool {
			_, ok := want[str(props, "uuid")]
			return ok
		}, 0), nil

	case driver.ResolvePointerQuery:
		uuid := params["uuid"].(string)
		var live, target interface{}
		if props, ok := m.Nodes[uuid]; ok {
			live = node(props)
		}
		if into, ok := m.Merged[uuid]; ok {
			target = into
		}
		return rows([]string{"e", "merged_into"}, []interface{}{live, target}), nil

	case driver.LoadEntitiesQuery:
		return m.entityRows(func(map[string]interface{}) bool { return true }, 0), nil

	case driver.LoadEntitiesSinceQuery:
		since := params["since"].(string)
		return m.entityRows(func(props map[string]interface{}) bool {
			return str(props, "updated_at") >= since
		}, 0), nil

	case driver.FindCandidatesQuery:
		self := params["uuid"].(string)
		group := params["group_id"].(string)
		kind := params["kind"].(string)
		prefix := params["prefix"].(string)
		initials := params["initials"].(string)
		domain := params["domain"].(string)
		return m.entityRows(func(props map[string]interface{}) bool {
			if str(props, "uuid") == self || str(props, "group_id") != group || str(props, "kind") != kind {
				return false
			}
			return (prefix != "" && strings.HasPrefix(str(props, "name_key"), prefix)) ||
				(initials != "" && str(props, "initials_key") == initials) ||
				(domain != "" && str(props, "domain_key") == domain)
		}, params["limit"].(int)), nil

	case driver.SetEntityPropsQuery:
		uuid := params["uuid"].(string)
		props, ok := m.Nodes[uuid]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		mergeProps(props, params["props"].(map[string]interface{}))
		return rows([]string{"uuid"}, []interface{}{uuid}), nil

	case driver.DropPairEdgesQuery:
		key := model.PairKey(params["primary_uuid"].(string), params["secondary_uuid"].(string))
		dropped := 0
		if _, ok := m.Distinct[key]; ok {
			delete(m.Distinct, key)
			dropped = 1
		}
		return rows([]string{"dropped"}, []interface{}{int64(dropped)}), nil

	case driver.RewireOutgoingRelatesQuery:
		// All simulated edges hang off the secondary as outgoing.
		n := m.Rewired[params["secondary_uuid"].(string)]
		return rows([]string{"rewired"}, []interface{}{int64(n)}), nil

	case driver.RewireIncomingRelatesQuery, driver.RewireMentionsQuery:
		return rows([]string{"rewired"}, []interface{}{int64(0)}), nil

	case driver.RetireEntityQuery:
		uuid := params["uuid"].(string)
		if _, ok := m.Nodes[uuid]; !ok {
			return neo4j.EagerResult{}, nil
		}
		delete(m.Nodes, uuid)
		m.Merged[uuid] = params["merged_into"].(string)
		return rows([]string{"uuid"}, []interface{}{uuid}), nil

	case driver.SaveReviewFlagQuery:
		pairKey := params["pair_key"].(string)
		uuid, ok := m.byPair[pairKey]
		if !ok {
			uuid = params["uuid"].(string)
			m.byPair[pairKey] = uuid
			m.Flags[uuid] = map[string]interface{}{
				"uuid":       uuid,
				"pair_key":   pairKey,
				"created_at": params["created_at"],
			}
		}
		flag := m.Flags[uuid]
		for _, k := range []string{"group_id", "kind", "primary_uuid", "secondary_uuid", "score", "method", "reason"} {
			flag[k] = params[k]
		}
		return rows([]string{"uuid"}, []interface{}{uuid}), nil

	case driver.GetReviewFlagQuery:
		props, ok := m.Flags[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return rows([]string{"f"}, []interface{}{node(props)}), nil

	case driver.ListReviewFlagsQuery:
		group := params["group_id"].(string)
		var flags []map[string]interface{}
		for _, props := range m.Flags {
			if group == "" || str(props, "group_id") == group {
				flags = append(flags, props)
			}
		}
		sort.Slice(flags, func(i, j int) bool {
			if a, b := str(flags[i], "created_at"), str(flags[j], "created_at"); a != b {
				return a > b
			}
			return str(flags[i], "uuid") < str(flags[j], "uuid")
		})
		flags = page(flags, params["offset"].(int), params["limit"].(int))
		res := neo4j.EagerResult{Keys: []string{"f"}}
		for _, props := range flags {
			res.Records = append(res.Records, record([]string{"f"}, node(props)))
		}
		return res, nil

	case driver.DeleteReviewFlagQuery:
		uuid := params["uuid"].(string)
		deleted := 0
		if props, ok := m.Flags[uuid]; ok {
			delete(m.byPair, str(props, "pair_key"))
			delete(m.Flags, uuid)
			deleted = 1
		}
		return rows([]string{"deleted"}, []interface{}{int64(deleted)}), nil

	case driver.DeleteReviewFlagByPairQuery:
		pairKey := params["pair_key"].(string)
		deleted := 0
		if uuid, ok := m.byPair[pairKey]; ok {
			delete(m.Flags, uuid)
			delete(m.byPair, pairKey)
			deleted = 1
		}
		return rows([]string{"deleted"}, []interface{}{int64(deleted)}), nil

	case driver.SaveDistinctPairQuery:
		a := params["a_uuid"].(string)
		b := params["b_uuid"].(string)
		if _, ok := m.Nodes[a]; !ok {
			return neo4j.EagerResult{}, nil
		}
		if _, ok := m.Nodes[b]; !ok {
			return neo4j.EagerResult{}, nil
		}
		key := model.PairKey(a, b)
		if _, ok := m.Distinct[key]; !ok {
			m.Distinct[key] = params["reason"].(string)
		}
		return rows([]string{"saved"}, []interface{}{int64(1)}), nil

	case driver.LoadDistinctPairsQuery:
		keys := make([]string, 0, len(m.Distinct))
		for k := range m.Distinct {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		res := neo4j.EagerResult{Keys: []string{"a_uuid", "b_uuid"}}
		for _, k := range keys {
			parts := strings.SplitN(k, "|", 2)
			res.Records = append(res.Records, record([]string{"a_uuid", "b_uuid"}, parts[0], parts[1]))
		}
		return res, nil

	case driver.GetConfidenceQuery:
		props, ok := m.Nodes[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return rows([]string{"confidence", "corroborations"},
			[]interface{}{props["confidence"], props["corroborations"]}), nil

	case driver.SetConfidenceQuery:
		props, ok := m.Nodes[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		props["confidence"] = params["confidence"]
		props["corroborations"] = params["corroborations"]
		props["updated_at"] = params["updated_at"]
		return rows([]string{"confidence"}, []interface{}{params["confidence"]}), nil

	case driver.LowConfidenceQuery:
		threshold := params["threshold"].(float64)
		group := params["group_id"].(string)
		var matched []map[string]interface{}
		for _, props := range m.Nodes {
			if f64(props, "confidence") >= threshold {
				continue
			}
			if group != "" && str(props, "group_id") != group {
				continue
			}
			matched = append(matched, props)
		}
		sort.Slice(matched, func(i, j int) bool {
			if a, b := f64(matched[i], "confidence"), f64(matched[j], "confidence"); a != b {
				return a < b
			}
			return str(matched[i], "uuid") < str(matched[j], "uuid")
		})
		if limit := params["limit"].(int); len(matched) > limit {
			matched = matched[:limit]
		}
		res := neo4j.EagerResult{Keys: []string{"n"}}
		for _, props := range matched {
			res.Records = append(res.Records, record([]string{"n"}, node(props)))
		}
		return res, nil
	}

	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) entityRows(match func(map[string]interface{}) bool, limit int) neo4j.EagerResult {
	uuids := make([]string, 0, len(m.Nodes))
	for uuid, props := range m.Nodes {
		if match(props) {
			uuids = append(uuids, uuid)
		}
	}
	sort.Strings(uuids)
	if limit > 0 && len(uuids) > limit {
		uuids = uuids[:limit]
	}
	res := neo4j.EagerResult{Keys: []string{"n"}}
	for _, uuid := range uuids {
		res.Records = append(res.Records, record([]string{"n"}, node(m.Nodes[uuid])))
	}
	return res
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *MockDriver) Connected(ctx context.Context) bool     { return !m.Offline }
func (m *MockDriver) Close(ctx context.Context) error        { return nil }

func node(props map[string]interface{}) neo4j.Node {
	copied := make(map[string]interface{}, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return neo4j.Node{Props: copied}
}

func mergeProps(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

func record(keys []string, values ...interface{}) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func rows(keys []string, values []interface{}) neo4j.EagerResult {
	return neo4j.EagerResult{Keys: keys, Records: []*neo4j.Record{record(keys, values...)}}
}

func page(flags []map[string]interface{}, offset, limit int) []map[string]interface{} {
	if offset >= len(flags) {
		return nil
	}
	flags = flags[offset:]
	if limit > 0 && len(flags) > limit {
		flags = flags[:limit]
	}
	return flags
}

func str(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func f64(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
