// Package core orchestrates entity resolution: candidate generation,
// similarity scoring, policy decisions, merges, review flags, and
// confidence upkeep over the knowledge graph.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/amalgam/internal/config"
	"github.com/agenthands/amalgam/internal/core/cluster"
	"github.com/agenthands/amalgam/internal/core/confidence"
	"github.com/agenthands/amalgam/internal/core/lookup"
	"github.com/agenthands/amalgam/internal/core/merge"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/core/policy"
	"github.com/agenthands/amalgam/internal/core/similarity"
	"github.com/agenthands/amalgam/internal/driver"
)

// ErrNotFound covers lookups of entities or review flags that do not
// exist (and never did, as far as the graph knows).
var ErrNotFound = errors.New("not found")

// corroborationBoost is the confidence increment a merge primary
// earns: two records agreeing is evidence for both.
const corroborationBoost = 0.1

// reviewClusterFlagCap bounds how many pending flags one clustering
// request considers, newest first.
const reviewClusterFlagCap = 500

// Resolver is the platform-facing facade over the resolution
// pipeline.
type Resolver struct {
	driver   driver.GraphDriver
	store    *Store
	sim      *similarity.Engine
	policy   *policy.Policy
	merger   *merge.Executor
	conf     *confidence.Store
	clusters cluster.Detector
	cfg      config.ResolutionConfig
	log      *zap.Logger

	mu            sync.Mutex
	lastPassStart time.Time
}

// NewResolver wires the pipeline. dis may be nil: resolution then runs
// with LLM assist off regardless of config.
func NewResolver(d driver.GraphDriver, dis policy.Disambiguator, cfg config.ResolutionConfig, log *zap.Logger) *Resolver {
	sim := similarity.NewEngine(cfg.GenericDomains)
	return &Resolver{
		driver:   d,
		store:    NewStore(d),
		sim:      sim,
		policy:   policy.New(cfg, dis, log),
		merger:   merge.NewExecutor(d, sim.GenericDomain, log),
		conf:     confidence.NewStore(d, log),
		clusters: cluster.NewDetector(),
		cfg:      cfg,
		log:      log.Named("resolver"),
	}
}

type scoredPair struct {
	a, b model.EntityRecord
	res  model.SimilarityResult
	ok   bool
}

// RunPass executes one resolution pass. Per-pair failures accumulate
// in the stats; only losing the store fails the pass itself.
func (r *Resolver) RunPass(ctx context.Context, kind model.RunKind) (model.PassStats, error) {
	started := time.Now()

	if !r.driver.Connected(ctx) {
		return model.PassStats{}, fmt.Errorf("resolution pass skipped: %w", driver.ErrUnavailable)
	}

	r.mu.Lock()
	since := r.lastPassStart
	r.mu.Unlock()

	var stats model.PassStats

	// Incremental needs a prior pass to diff against.
	incremental := kind == model.RunIncremental && !since.IsZero()

	var entities []model.EntityRecord
	var err error
	if incremental {
		entities, err = r.store.LoadEntitiesSince(ctx, since)
	} else {
		entities, err = r.store.LoadEntities(ctx)
	}
	if err != nil {
		return stats, err
	}

	distinct, err := r.store.LoadDistinctPairs(ctx)
	if err != nil {
		return stats, err
	}

	pairs := r.collectPairs(ctx, entities, incremental, distinct, &stats)
	stats.Pairs = len(pairs)

	scored := r.scorePairs(ctx, pairs, &stats)
	decisions := r.decidePairs(ctx, scored)
	r.applyDecisions(ctx, scored, decisions, &stats)

	r.mu.Lock()
	r.lastPassStart = started.UTC()
	r.mu.Unlock()

	stats.Duration = time.Since(started)
	stats.DurationMS = stats.Duration.Milliseconds()
	return stats, nil
}

// collectPairs generates candidate pairs: in-memory index for full
// passes, store-backed finder for incremental ones. Resolved-distinct
// pairs never come back.
func (r *Resolver) collectPairs(ctx context.Context, entities []model.EntityRecord, incremental bool, distinct map[string]struct{}, stats *model.PassStats) []lookup.Pair {
	var pairs []lookup.Pair

	if !incremental {
		ix := lookup.NewIndex(r.sim.GenericDomain, r.cfg.MaxCandidates)
		for _, e := range entities {
			if e.Name == "" {
				stats.Malformed++
				continue
			}
			stats.Entities++
			ix.Add(e)
		}
		pairs = ix.Pairs()
		if n := ix.Overflowed(); n > 0 {
			r.log.Warn("candidate buckets overflowed pairing cap", zap.Int("buckets", n))
		}
	} else {
		seen := make(map[string]struct{})
		for _, e := range entities {
			if e.Name == "" {
				stats.Malformed++
				continue
			}
			stats.Entities++
			keys := lookup.KeysFor(e, r.sim.GenericDomain)
			candidates, err := r.store.FindCandidates(ctx, e, keys, r.cfg.MaxCandidates)
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
				continue
			}
			for _, c := range candidates {
				key := model.PairKey(e.UUID, c.UUID)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				pairs = append(pairs, lookup.Pair{A: e, B: c})
			}
		}
	}

	kept := make([]lookup.Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, skip := distinct[model.PairKey(p.A.UUID, p.B.UUID)]; skip {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// scorePairs runs the pure similarity stage on a bounded worker pool.
func (r *Resolver) scorePairs(ctx context.Context, pairs []lookup.Pair, stats *model.PassStats) []scoredPair {
	scored := make([]scoredPair, len(pairs))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			res, err := r.sim.Compare(p.A, p.B)
			if err != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, fmt.Sprintf("compare %s: %v", model.PairKey(p.A.UUID, p.B.UUID), err))
				mu.Unlock()
				return nil
			}
			scored[i] = scoredPair{a: p.A, b: p.B, res: res, ok: true}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; per-pair failures are stats

	return scored
}

// decidePairs maps scores to decisions. Flagged-band pairs consult the
// LLM here, in parallel, so disambiguation latency never serializes
// the pass.
func (r *Resolver) decidePairs(ctx context.Context, scored []scoredPair) []model.MergeDecision {
	decisions := make([]model.MergeDecision, len(scored))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i := range scored {
		i := i
		sp := &scored[i]
		if !sp.ok {
			continue
		}
		g.Go(func() error {
			decisions[i] = r.policy.Decide(ctx, sp.a, sp.b, sp.res)
			return nil
		})
	}
	_ = g.Wait()

	return decisions
}

// applyDecisions writes the pass outcome. Merges run strictly
// serially: earlier merges retire entities that later decisions still
// reference, and alias resolution inside the executor absorbs that.
func (r *Resolver) applyDecisions(ctx context.Context, scored []scoredPair, decisions []model.MergeDecision, stats *model.PassStats) {
	for i := range decisions {
		if !scored[i].ok {
			continue
		}
		d := decisions[i]
		if d.Escalated {
			stats.Escalated++
		}

		switch d.State {
		case model.StateAutoMerged:
			stats.AutoMerged++
			out, err := r.merger.Execute(ctx, d.PrimaryUUID, d.SecondaryUUID, mergeReason(d))
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
				continue
			}
			if out.Noop {
				continue
			}
			stats.Merged++
			stats.EdgesRewired += out.EdgesRewired
			if err := r.store.DeleteReviewFlagByPair(ctx, d.PairKey()); err != nil {
				stats.Errors = append(stats.Errors, err.Error())
			}
			if _, err := r.conf.Boost(ctx, out.PrimaryUUID, corroborationBoost); err != nil {
				stats.Errors = append(stats.Errors, err.Error())
			}

		case model.StateFlaggedForReview:
			stats.Flagged++
			if err := r.store.SaveReviewFlag(ctx, d); err != nil {
				stats.Errors = append(stats.Errors, err.Error())
			}

		case model.StateDistinct:
			stats.Distinct++
			// A confident LLM "different" is worth remembering so the
			// pair is not re-flagged every pass.
			if d.Method == model.MatchLLMAssisted {
				if err := r.store.SaveDistinctPair(ctx, d.PrimaryUUID, d.SecondaryUUID, d.Reason); err != nil {
					stats.Errors = append(stats.Errors, err.Error())
				}
			}
		}
	}
}

func mergeReason(d model.MergeDecision) string {
	if d.Reason != "" {
		return d.Reason
	}
	return fmt.Sprintf("similarity %.4f (%s)", d.Score, d.Method)
}

func (r *Resolver) workers() int {
	if r.cfg.Workers > 0 {
		return r.cfg.Workers
	}
	return 1
}

// SaveEntity is the ingest boundary: validates, scores initial
// confidence, computes candidate keys, and upserts. Callers schedule
// an incremental pass afterwards.
func (r *Resolver) SaveEntity(ctx context.Context, in model.EntityInput) (model.EntityRecord, error) {
	kind, err := model.ParseKind(string(in.Kind))
	if err != nil {
		return model.EntityRecord{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.EntityRecord{}, model.ErrMissingDisplayName
	}

	source := in.Source
	if source == "" {
		source = model.SourceUnknown
	}

	now := time.Now().UTC()
	rec := model.EntityRecord{
		UUID:         in.UUID,
		GroupID:      in.GroupID,
		Kind:         kind,
		Name:         name,
		Email:        in.Email,
		Role:         in.Role,
		Affiliation:  in.Affiliation,
		Domain:       in.Domain,
		Industry:     in.Industry,
		Aliases:      in.Aliases,
		AIConfidence: in.AIConfidence,
		Sources:      []model.Source{source},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if rec.UUID == "" {
		rec.UUID = uuid.New().String()
	}
	rec.Confidence = confidence.Score(confidence.Inputs{
		Source:       source,
		AIConfidence: in.AIConfidence,
		Occurrences:  in.Occurrences,
		HasContext:   in.Email != "" || in.Affiliation != "" || in.Domain != "" || in.Industry != "",
		PartialMatch: in.PartialMatch,
	})

	// Updates keep the original creation time and never lose trust the
	// entity already earned.
	if existing, ok, err := r.store.GetEntity(ctx, rec.UUID); err != nil {
		return model.EntityRecord{}, err
	} else if ok {
		rec.CreatedAt = existing.CreatedAt
		rec.Corroborations = existing.Corroborations
		if existing.Confidence > rec.Confidence {
			rec.Confidence = existing.Confidence
		}
		if len(rec.Aliases) == 0 {
			rec.Aliases = existing.Aliases
		}
	}

	keys := lookup.KeysFor(rec, r.sim.GenericDomain)
	if err := r.store.SaveEntity(ctx, rec, keys); err != nil {
		return model.EntityRecord{}, err
	}

	r.log.Debug("saved entity",
		zap.String("uuid", rec.UUID),
		zap.String("kind", string(rec.Kind)),
		zap.Float64("confidence", rec.Confidence))
	return rec, nil
}

// GetEntity returns the live record for an id, following merged-away
// uuids to the surviving primary.
func (r *Resolver) GetEntity(ctx context.Context, id string) (model.EntityRecord, error) {
	terminal, err := r.merger.ResolveAlias(ctx, id)
	if err != nil {
		return model.EntityRecord{}, err
	}
	rec, ok, err := r.store.GetEntity(ctx, terminal)
	if err != nil {
		return model.EntityRecord{}, err
	}
	if !ok {
		return model.EntityRecord{}, ErrNotFound
	}
	return rec, nil
}

// FlaggedPairs pages the human review queue, newest first.
func (r *Resolver) FlaggedPairs(ctx context.Context, groupID string, limit, offset int) ([]model.MergeDecision, error) {
	return r.store.ListReviewFlags(ctx, groupID, limit, offset)
}

// ReviewClusters groups pending flags into clusters of entities that
// are flagged against each other, so a reviewer settles a whole tangle
// at once instead of pair by pair.
func (r *Resolver) ReviewClusters(ctx context.Context, groupID string, limit int) ([]cluster.Cluster, error) {
	flags, err := r.store.ListReviewFlags(ctx, groupID, reviewClusterFlagCap, 0)
	if err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(flags)*2)
	uuids := make([]string, 0, len(flags)*2)
	for _, f := range flags {
		for _, id := range []string{f.PrimaryUUID, f.SecondaryUUID} {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			uuids = append(uuids, id)
		}
	}

	entities, err := r.store.GetEntities(ctx, uuids)
	if err != nil {
		return nil, err
	}

	clusters := r.clusters.Detect(entities, flags)
	if limit > 0 && len(clusters) > limit {
		clusters = clusters[:limit]
	}
	return clusters, nil
}

// ReviewResolution reports how a flag was settled.
type ReviewResolution struct {
	FlagUUID string         `json:"flag_uuid"`
	Approved bool           `json:"approved"`
	Merge    *merge.Outcome `json:"merge,omitempty"`
}

// ResolveReview settles a flagged pair: approve merges it, reject
// records the pair as resolved-distinct. Either way the flag is
// cleared.
func (r *Resolver) ResolveReview(ctx context.Context, flagID string, approve bool) (ReviewResolution, error) {
	flag, ok, err := r.store.GetReviewFlag(ctx, flagID)
	if err != nil {
		return ReviewResolution{}, err
	}
	if !ok {
		return ReviewResolution{}, ErrNotFound
	}

	resolution := ReviewResolution{FlagUUID: flagID, Approved: approve}

	if approve {
		out, err := r.merger.Execute(ctx, flag.PrimaryUUID, flag.SecondaryUUID, "approved in review")
		if err != nil {
			return ReviewResolution{}, err
		}
		resolution.Merge = &out
		if !out.Noop {
			if _, err := r.conf.Boost(ctx, out.PrimaryUUID, corroborationBoost); err != nil {
				r.log.Warn("failed to boost merge primary", zap.String("uuid", out.PrimaryUUID), zap.Error(err))
			}
		}
	} else {
		if err := r.store.SaveDistinctPair(ctx, flag.PrimaryUUID, flag.SecondaryUUID, "rejected in review"); err != nil {
			return ReviewResolution{}, err
		}
	}

	if err := r.store.DeleteReviewFlag(ctx, flagID); err != nil {
		return resolution, err
	}
	return resolution, nil
}

// LowConfidence lists live entities below the trust threshold.
func (r *Resolver) LowConfidence(ctx context.Context, groupID string, threshold float64, limit int) ([]model.EntityRecord, error) {
	return r.conf.LowConfidence(ctx, groupID, threshold, limit)
}

// Connected reports store reachability for health checks.
func (r *Resolver) Connected(ctx context.Context) bool {
	return r.driver.Connected(ctx)
}
