package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

// MockDriver backs handler tests with just enough graph state to
// exercise the routes: entities, tombstones, review flags, and
// resolved-distinct edges.
type MockDriver struct {
	mu       sync.Mutex
	Nodes    map[string]map[string]interface{}
	Merged   map[string]string
	Flags    map[string]map[string]interface{}
	Distinct map[string]string
	Offline  bool

	// BlockLoad, when set, parks LoadEntities until the channel closes
	// so a pass can be held in flight.
	BlockLoad chan struct{}
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		Nodes:    make(map[string]map[string]interface{}),
		Merged:   make(map[string]string),
		Flags:    make(map[string]map[string]interface{}),
		Distinct: make(map[string]string),
	}
}

func (m *MockDriver) putEntity(rec model.EntityRecord) {
	m.mu.Lock()
	m.Nodes[rec.UUID] = driver.EntityProps(rec)
	m.mu.Unlock()
}

func (m *MockDriver) putFlag(d model.MergeDecision) {
	props := map[string]interface{}{
		"uuid":           d.UUID,
		"pair_key":       d.PairKey(),
		"group_id":       d.GroupID,
		"kind":           string(d.Kind),
		"primary_uuid":   d.PrimaryUUID,
		"secondary_uuid": d.SecondaryUUID,
		"score":          d.Score,
		"method":         string(d.Method),
		"reason":         d.Reason,
		"created_at":     d.CreatedAt.Format(time.RFC3339),
	}
	m.mu.Lock()
	m.Flags[d.UUID] = props
	m.mu.Unlock()
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	if query == driver.LoadEntitiesQuery {
		m.mu.Lock()
		block := m.BlockLoad
		m.mu.Unlock()
		if block != nil {
			<-block
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch query {
	case driver.SaveEntityQuery:
		uuid := params["uuid"].(string)
		if _, ok := m.Nodes[uuid]; !ok {
			m.Nodes[uuid] = map[string]interface{}{}
		}
		for k, v := range params["props"].(map[string]interface{}) {
			m.Nodes[uuid][k] = v
		}
		return row([]string{"uuid"}, uuid), nil

	case driver.GetEntityQuery:
		props, ok := m.Nodes[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return row([]string{"n"}, neo4j.Node{Props: props}), nil

	case driver.GetEntitiesQuery:
		res := neo4j.EagerResult{Keys: []string{"n"}}
		uuids := append([]string(nil), params["uuids"].([]string)...)
		sort.Strings(uuids)
		for _, uuid := range uuids {
			if props, ok := m.Nodes[uuid]; ok {
				res.Records = append(res.Records, &neo4j.Record{
					Keys: []string{"n"}, Values: []interface{}{neo4j.Node{Props: props}},
				})
			}
		}
		return res, nil

	case driver.ResolvePointerQuery:
		uuid := params["uuid"].(string)
		var live, target interface{}
		if props, ok := m.Nodes[uuid]; ok {
			live = neo4j.Node{Props: props}
		}
		if into, ok := m.Merged[uuid]; ok {
			target = into
		}
		return row([]string{"e", "merged_into"}, live, target), nil

	case driver.LoadEntitiesQuery, driver.LoadDistinctPairsQuery:
		return neo4j.EagerResult{}, nil

	case driver.GetReviewFlagQuery:
		props, ok := m.Flags[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return row([]string{"f"}, neo4j.Node{Props: props}), nil

	case driver.ListReviewFlagsQuery:
		group := params["group_id"].(string)
		res := neo4j.EagerResult{Keys: []string{"f"}}
		var uuids []string
		for uuid, props := range m.Flags {
			if group == "" || props["group_id"] == group {
				uuids = append(uuids, uuid)
			}
		}
		sort.Strings(uuids)
		for _, uuid := range uuids {
			res.Records = append(res.Records, &neo4j.Record{
				Keys: []string{"f"}, Values: []interface{}{neo4j.Node{Props: m.Flags[uuid]}},
			})
		}
		return res, nil

	case driver.DeleteReviewFlagQuery:
		delete(m.Flags, params["uuid"].(string))
		return row([]string{"deleted"}, int64(1)), nil

	case driver.SaveDistinctPairQuery:
		key := model.PairKey(params["a_uuid"].(string), params["b_uuid"].(string))
		m.Distinct[key] = params["reason"].(string)
		return row([]string{"saved"}, int64(1)), nil

	case driver.LowConfidenceQuery:
		threshold := params["threshold"].(float64)
		res := neo4j.EagerResult{Keys: []string{"n"}}
		var uuids []string
		for uuid, props := range m.Nodes {
			if c, ok := props["confidence"].(float64); ok && c < threshold {
				uuids = append(uuids, uuid)
			}
		}
		sort.Strings(uuids)
		for _, uuid := range uuids {
			res.Records = append(res.Records, &neo4j.Record{
				Keys: []string{"n"}, Values: []interface{}{neo4j.Node{Props: m.Nodes[uuid]}},
			})
		}
		return res, nil
	}

	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *MockDriver) Connected(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Offline
}

func (m *MockDriver) Close(ctx context.Context) error { return nil }

func row(keys []string, values ...interface{}) neo4j.EagerResult {
	return neo4j.EagerResult{
		Keys:    keys,
		Records: []*neo4j.Record{{Keys: keys, Values: values}},
	}
}
