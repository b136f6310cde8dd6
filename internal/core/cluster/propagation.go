package cluster

import (
	"math"
	"sort"

	"github.com/agenthands/amalgam/internal/core/model"
)

// PropagationDetector clusters by label propagation over the flag
// graph, with edges weighted by flag score. Each entity starts under
// its own label and repeatedly adopts the heaviest label among its
// neighbors, so tightly flagged groups converge onto one label while
// a lone low-score bridge between two such groups loses the vote on
// both sides and the groups stay apart.
type PropagationDetector struct {
	MaxIterations int
}

func NewPropagationDetector() *PropagationDetector {
	return &PropagationDetector{MaxIterations: 20}
}

func (d *PropagationDetector) Detect(entities []model.EntityRecord, flags []model.MergeDecision) []Cluster {
	byUUID := indexEntities(entities)
	if len(byUUID) == 0 {
		return nil
	}

	adj := make(map[string]map[string]int, len(byUUID))
	for uuid := range byUUID {
		adj[uuid] = make(map[string]int)
	}
	for _, f := range flags {
		if _, ok := byUUID[f.PrimaryUUID]; !ok {
			continue
		}
		if _, ok := byUUID[f.SecondaryUUID]; !ok {
			continue
		}
		w := weight(f.Score)
		adj[f.PrimaryUUID][f.SecondaryUUID] += w
		adj[f.SecondaryUUID][f.PrimaryUUID] += w
	}

	labels := make(map[string]string, len(byUUID))
	for uuid := range byUUID {
		labels[uuid] = uuid
	}

	// Fixed sweep order keeps the outcome deterministic.
	order := sortedUUIDs(byUUID)

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := 0
		for _, u := range order {
			neighbors := adj[u]
			if len(neighbors) == 0 {
				continue
			}

			counts := make(map[string]int, len(neighbors))
			heaviest := 0
			for v, w := range neighbors {
				label := labels[v]
				counts[label] += w
				if counts[label] > heaviest {
					heaviest = counts[label]
				}
			}

			var candidates []string
			for label, count := range counts {
				if count == heaviest {
					candidates = append(candidates, label)
				}
			}
			sort.Strings(candidates)
			// Ties go to the lexicographically largest label so reruns agree.
			best := candidates[len(candidates)-1]

			if labels[u] != best {
				labels[u] = best
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	return assemble(labels, byUUID, flags)
}

// weight scales a flag score onto an integer edge weight so stronger
// pairs dominate label votes.
func weight(score float64) int {
	w := int(math.Round(score * 100))
	if w < 1 {
		w = 1
	}
	return w
}
