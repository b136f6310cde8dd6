// Package cluster groups pending review flags into clusters of
// entities that are flagged against each other, so a reviewer settles
// one suspected-duplicate tangle at a time instead of one pair at a
// time.
package cluster

import (
	"math"
	"sort"

	"github.com/agenthands/amalgam/internal/core/model"
)

// Cluster is one suspected-duplicate group: the member entities and
// the pending flags between them. Members always share group and kind
// because flags never pair across either.
type Cluster struct {
	GroupID   string                `json:"group_id"`
	Kind      model.Kind            `json:"kind"`
	Size      int                   `json:"size"`
	MeanScore float64               `json:"mean_score"`
	Entities  []model.EntityRecord  `json:"entities"`
	Flags     []model.MergeDecision `json:"flags"`
}

// Detector turns flagged pairs into clusters. Implementations are pure
// and deterministic: same inputs, same clusters, same order.
type Detector interface {
	Detect(entities []model.EntityRecord, flags []model.MergeDecision) []Cluster
}

// NewDetector returns the default detector. Propagation handles the
// ugly case better than plain connectivity: a single weak bridge
// between two dense tangles yields two clusters, not one sprawl.
func NewDetector() Detector {
	return NewPropagationDetector()
}

// ComponentDetector clusters by transitive connectivity: entities land
// together whenever any chain of pending flags links them. Every flag
// with both endpoints present is attached to exactly one cluster.
type ComponentDetector struct{}

func (ComponentDetector) Detect(entities []model.EntityRecord, flags []model.MergeDecision) []Cluster {
	byUUID := indexEntities(entities)

	adj := make(map[string][]string, len(byUUID))
	for _, f := range flags {
		if _, ok := byUUID[f.PrimaryUUID]; !ok {
			continue
		}
		if _, ok := byUUID[f.SecondaryUUID]; !ok {
			continue
		}
		adj[f.PrimaryUUID] = append(adj[f.PrimaryUUID], f.SecondaryUUID)
		adj[f.SecondaryUUID] = append(adj[f.SecondaryUUID], f.PrimaryUUID)
	}

	labels := make(map[string]string, len(byUUID))
	visited := make(map[string]struct{}, len(byUUID))
	for _, root := range sortedUUIDs(byUUID) {
		if _, done := visited[root]; done {
			continue
		}
		visited[root] = struct{}{}
		stack := []string{root}
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			labels[u] = root
			for _, v := range adj[u] {
				if _, done := visited[v]; !done {
					visited[v] = struct{}{}
					stack = append(stack, v)
				}
			}
		}
	}

	return assemble(labels, byUUID, flags)
}

func indexEntities(entities []model.EntityRecord) map[string]model.EntityRecord {
	byUUID := make(map[string]model.EntityRecord, len(entities))
	for _, e := range entities {
		byUUID[e.UUID] = e
	}
	return byUUID
}

func sortedUUIDs(byUUID map[string]model.EntityRecord) []string {
	uuids := make([]string, 0, len(byUUID))
	for uuid := range byUUID {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	return uuids
}

// assemble turns a uuid->label assignment into sorted clusters. A flag
// joins a cluster only when both of its entities landed in it; a flag
// bridging two clusters stays in the flat review queue. Single-entity
// groups are not clusters and are dropped.
func assemble(labels map[string]string, byUUID map[string]model.EntityRecord, flags []model.MergeDecision) []Cluster {
	members := make(map[string][]string, len(labels))
	for uuid, label := range labels {
		members[label] = append(members[label], uuid)
	}

	intra := make(map[string][]model.MergeDecision)
	for _, f := range flags {
		pl, ok := labels[f.PrimaryUUID]
		if !ok {
			continue
		}
		if sl, ok := labels[f.SecondaryUUID]; !ok || sl != pl {
			continue
		}
		intra[pl] = append(intra[pl], f)
	}

	var clusters []Cluster
	for label, uuids := range members {
		if len(uuids) < 2 {
			continue
		}
		sort.Strings(uuids)

		c := Cluster{Size: len(uuids)}
		for _, uuid := range uuids {
			c.Entities = append(c.Entities, byUUID[uuid])
		}
		c.GroupID = c.Entities[0].GroupID
		c.Kind = c.Entities[0].Kind

		c.Flags = intra[label]
		sort.Slice(c.Flags, func(i, j int) bool {
			return c.Flags[i].PairKey() < c.Flags[j].PairKey()
		})
		var sum float64
		for _, f := range c.Flags {
			sum += f.Score
		}
		if len(c.Flags) > 0 {
			c.MeanScore = math.Round(sum/float64(len(c.Flags))*10000) / 10000
		}

		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Entities[0].UUID < clusters[j].Entities[0].UUID
	})
	return clusters
}
