package core

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/lookup"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

const defaultFlagPageSize = 50

// Store is the resolution view of the graph: live entities, review
// flags, and resolved-distinct verdicts. Errors carry context; callers
// decide whether they fail the pass.
type Store struct {
	driver driver.GraphDriver
}

func NewStore(d driver.GraphDriver) *Store {
	return &Store{driver: d}
}

// SaveEntity upserts the record together with its candidate keys.
func (s *Store) SaveEntity(ctx context.Context, rec model.EntityRecord, keys lookup.Keys) error {
	props := driver.EntityProps(rec)
	props["name_key"] = keys.NameKey
	props["initials_key"] = keys.Initials
	props["domain_key"] = keys.Domain

	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveEntityQuery, map[string]interface{}{
		"uuid":  rec.UUID,
		"props": props,
	}); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", rec.UUID, err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (model.EntityRecord, bool, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetEntityQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return model.EntityRecord{}, false, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return model.EntityRecord{}, false, nil
	}
	rec, ok := driver.EntityFromRecord(res.Records[0], "n")
	return rec, ok, nil
}

// GetEntities returns the live records for the given uuids. Uuids that
// were merged away simply do not come back.
func (s *Store) GetEntities(ctx context.Context, uuids []string) ([]model.EntityRecord, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	res, err := s.driver.ExecuteQuery(ctx, driver.GetEntitiesQuery, map[string]interface{}{"uuids": uuids})
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by uuid: %w", err)
	}
	return entitiesFrom(res), nil
}

// LoadEntities returns every live entity, all groups and kinds.
func (s *Store) LoadEntities(ctx context.Context) ([]model.EntityRecord, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.LoadEntitiesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	return entitiesFrom(res), nil
}

// LoadEntitiesSince returns live entities touched at or after the
// cutoff.
func (s *Store) LoadEntitiesSince(ctx context.Context, since time.Time) ([]model.EntityRecord, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.LoadEntitiesSinceQuery, map[string]interface{}{
		"since": since.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load entities since %s: %w", since, err)
	}
	return entitiesFrom(res), nil
}

// FindCandidates returns same-group same-kind entities colliding with
// the record on any candidate key, excluding the record itself.
func (s *Store) FindCandidates(ctx context.Context, rec model.EntityRecord, keys lookup.Keys, limit int) ([]model.EntityRecord, error) {
	if limit <= 0 {
		limit = lookup.DefaultBucketCap
	}
	res, err := s.driver.ExecuteQuery(ctx, driver.FindCandidatesQuery, map[string]interface{}{
		"uuid":     rec.UUID,
		"group_id": rec.GroupID,
		"kind":     string(rec.Kind),
		"prefix":   keys.Prefix,
		"initials": keys.Initials,
		"domain":   keys.Domain,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates for %s: %w", rec.UUID, err)
	}
	return entitiesFrom(res), nil
}

// SaveReviewFlag persists a flagged decision, deduped on the pair key:
// re-flagging a pair refreshes the existing flag instead of stacking a
// second one.
func (s *Store) SaveReviewFlag(ctx context.Context, d model.MergeDecision) error {
	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveReviewFlagQuery, map[string]interface{}{
		"pair_key":       d.PairKey(),
		"uuid":           d.UUID,
		"group_id":       d.GroupID,
		"kind":           string(d.Kind),
		"primary_uuid":   d.PrimaryUUID,
		"secondary_uuid": d.SecondaryUUID,
		"score":          d.Score,
		"method":         string(d.Method),
		"reason":         d.Reason,
		"created_at":     d.CreatedAt.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("failed to save review flag %s: %w", d.PairKey(), err)
	}
	return nil
}

func (s *Store) GetReviewFlag(ctx context.Context, id string) (model.MergeDecision, bool, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetReviewFlagQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return model.MergeDecision{}, false, fmt.Errorf("failed to get review flag %s: %w", id, err)
	}
	if len(res.Records) == 0 {
		return model.MergeDecision{}, false, nil
	}
	flag, ok := driver.FlagFromRecord(res.Records[0], "f")
	return flag, ok, nil
}

// ListReviewFlags pages the review queue newest first. Empty groupID
// means all groups.
func (s *Store) ListReviewFlags(ctx context.Context, groupID string, limit, offset int) ([]model.MergeDecision, error) {
	if limit <= 0 {
		limit = defaultFlagPageSize
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.driver.ExecuteQuery(ctx, driver.ListReviewFlagsQuery, map[string]interface{}{
		"group_id": groupID,
		"limit":    limit,
		"offset":   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list review flags: %w", err)
	}
	var out []model.MergeDecision
	for _, r := range res.Records {
		if flag, ok := driver.FlagFromRecord(r, "f"); ok {
			out = append(out, flag)
		}
	}
	return out, nil
}

func (s *Store) DeleteReviewFlag(ctx context.Context, id string) error {
	if _, err := s.driver.ExecuteQuery(ctx, driver.DeleteReviewFlagQuery, map[string]interface{}{"uuid": id}); err != nil {
		return fmt.Errorf("failed to delete review flag %s: %w", id, err)
	}
	return nil
}

// DeleteReviewFlagByPair removes a stale flag after its pair was
// merged through another path.
func (s *Store) DeleteReviewFlagByPair(ctx context.Context, pairKey string) error {
	if _, err := s.driver.ExecuteQuery(ctx, driver.DeleteReviewFlagByPairQuery, map[string]interface{}{"pair_key": pairKey}); err != nil {
		return fmt.Errorf("failed to delete review flag for pair %s: %w", pairKey, err)
	}
	return nil
}

// SaveDistinctPair records a human or confident-LLM "not duplicates"
// verdict. The edge is stored in sorted-uuid direction so MERGE
// dedupes it.
func (s *Store) SaveDistinctPair(ctx context.Context, aUUID, bUUID, reason string) error {
	if bUUID < aUUID {
		aUUID, bUUID = bUUID, aUUID
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveDistinctPairQuery, map[string]interface{}{
		"a_uuid":     aUUID,
		"b_uuid":     bUUID,
		"reason":     reason,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("failed to save distinct pair %s|%s: %w", aUUID, bUUID, err)
	}
	return nil
}

// LoadDistinctPairs returns every resolved-distinct pair key, the set
// the pass consults before scoring.
func (s *Store) LoadDistinctPairs(ctx context.Context) (map[string]struct{}, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.LoadDistinctPairsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load distinct pairs: %w", err)
	}
	out := make(map[string]struct{}, len(res.Records))
	for _, r := range res.Records {
		a := driver.RecordString(r, "a_uuid")
		b := driver.RecordString(r, "b_uuid")
		if a != "" && b != "" {
			out[model.PairKey(a, b)] = struct{}{}
		}
	}
	return out, nil
}

func entitiesFrom(res neo4j.EagerResult) []model.EntityRecord {
	var out []model.EntityRecord
	for _, r := range res.Records {
		if rec, ok := driver.EntityFromRecord(r, "n"); ok {
			out = append(out, rec)
		}
	}
	return out
}
