// Package confidence scores how much the graph trusts an entity and
// adjusts that score as corroborating evidence arrives.
package confidence

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

// Inputs describes one entity mention for initial scoring.
type Inputs struct {
	Source       model.Source
	AIConfidence float64
	Occurrences  int
	HasContext   bool
	PartialMatch bool
}

var sourceWeights = map[model.Source]float64{
	model.SourceManual:       1.0,
	model.SourceDocument:     0.9,
	model.SourceTranscript:   0.85,
	model.SourceConversation: 0.8,
	model.SourceAIInferred:   0.7,
	model.SourceUnknown:      0.5,
}

const (
	// defaultBase seeds entities that never had a confidence before a
	// boost touches them.
	defaultBase    = 0.5
	contextBoost   = 1.1
	partialPenalty = 0.9
	defaultLimit   = 50
)

// Score computes the initial confidence of a mention:
// sourceWeight · aiFactor · occurrenceBoost · contextBoost ·
// partialPenalty, clamped to [0,1] and rounded to two decimals.
func Score(in Inputs) float64 {
	w, ok := sourceWeights[in.Source]
	if !ok {
		w = sourceWeights[model.SourceUnknown]
	}

	ai := 1.0
	if in.Source == model.SourceAIInferred && in.AIConfidence > 0 && in.AIConfidence <= 1 {
		ai = in.AIConfidence
	}

	occ := 1.0
	if in.Occurrences > 1 {
		extra := in.Occurrences - 1
		if extra > 3 {
			extra = 3
		}
		occ = 1 + 0.1*float64(extra)
	}

	cx := 1.0
	if in.HasContext {
		cx = contextBoost
	}

	pp := 1.0
	if in.PartialMatch {
		pp = partialPenalty
	}

	return clamp(w * ai * occ * cx * pp)
}

func clamp(v float64) float64 {
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return math.Round(v*100) / 100
}

// Store reads and adjusts persisted confidence.
type Store struct {
	driver driver.GraphDriver
	log    *zap.Logger
}

func NewStore(d driver.GraphDriver, log *zap.Logger) *Store {
	return &Store{driver: d, log: log.Named("confidence")}
}

// Boost raises an entity's confidence by amount and counts the
// corroboration. Entities without a prior confidence start from 0.5.
// Returns the new value.
func (s *Store) Boost(ctx context.Context, entityID string, amount float64) (float64, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetConfidenceQuery, map[string]interface{}{"uuid": entityID})
	if err != nil {
		return 0, fmt.Errorf("failed to read confidence of %s: %w", entityID, err)
	}
	if len(res.Records) == 0 {
		return 0, fmt.Errorf("entity %s not found", entityID)
	}

	current := driver.RecordFloat(res.Records[0], "confidence")
	corroborations := driver.RecordInt(res.Records[0], "corroborations")
	if current <= 0 {
		current = defaultBase
	}
	next := clamp(current + amount)
	corroborations++

	if _, err := s.driver.ExecuteQuery(ctx, driver.SetConfidenceQuery, map[string]interface{}{
		"uuid":           entityID,
		"confidence":     next,
		"corroborations": corroborations,
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return 0, fmt.Errorf("failed to write confidence of %s: %w", entityID, err)
	}

	s.log.Debug("boosted confidence",
		zap.String("uuid", entityID),
		zap.Float64("confidence", next),
		zap.Int("corroborations", corroborations))
	return next, nil
}

// LowConfidence lists live entities below threshold, least trusted
// first. Empty groupID means all groups.
func (s *Store) LowConfidence(ctx context.Context, groupID string, threshold float64, limit int) ([]model.EntityRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	res, err := s.driver.ExecuteQuery(ctx, driver.LowConfidenceQuery, map[string]interface{}{
		"group_id":  groupID,
		"threshold": threshold,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list low-confidence entities: %w", err)
	}

	var out []model.EntityRecord
	for _, r := range res.Records {
		if rec, ok := driver.EntityFromRecord(r, "n"); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
