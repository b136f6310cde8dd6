// Package policy turns similarity scores into merge decisions. The
// LLM only ever sees the ambiguous middle band; both threshold floors
// are inclusive.
package policy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/config"
	"github.com/agenthands/amalgam/internal/core/dedupe"
	"github.com/agenthands/amalgam/internal/core/merge"
	"github.com/agenthands/amalgam/internal/core/model"
)

// Disambiguator is the LLM escalation seat. A nil disambiguator (or
// assist disabled) leaves flagged pairs to humans.
type Disambiguator interface {
	SameEntity(ctx context.Context, a, b model.EntityRecord) (dedupe.Verdict, error)
}

type Policy struct {
	autoMerge     float64
	review        float64
	llmAssist     bool
	llmConfidence float64
	dis           Disambiguator
	log           *zap.Logger
}

func New(cfg config.ResolutionConfig, dis Disambiguator, log *zap.Logger) *Policy {
	return &Policy{
		autoMerge:     cfg.AutoMergeThreshold,
		review:        cfg.ReviewThreshold,
		llmAssist:     cfg.LLMAssist,
		llmConfidence: cfg.LLMConfidence,
		dis:           dis,
		log:           log.Named("policy"),
	}
}

// Decide maps a scored pair to a decision. Primary/secondary follow
// merge.ChoosePrimary so every downstream consumer sees the same
// orientation.
func (p *Policy) Decide(ctx context.Context, a, b model.EntityRecord, res model.SimilarityResult) model.MergeDecision {
	primary, secondary := merge.ChoosePrimary(a, b)
	d := model.MergeDecision{
		UUID:          uuid.New().String(),
		GroupID:       primary.GroupID,
		Kind:          primary.Kind,
		PrimaryUUID:   primary.UUID,
		SecondaryUUID: secondary.UUID,
		Score:         res.Score,
		Method:        res.Method,
		Signals:       res.Signals,
		CreatedAt:     time.Now().UTC(),
	}

	switch {
	case res.Score >= p.autoMerge:
		d.State = model.StateAutoMerged
	case res.Score >= p.review:
		d.State = model.StateFlaggedForReview
		p.escalate(ctx, a, b, &d)
	default:
		d.State = model.StateDistinct
	}
	return d
}

// escalate asks the LLM about a flagged pair. A confident "same"
// promotes to auto-merge, a confident "different" demotes to distinct,
// anything else (including failure) keeps the flag: fail-soft.
func (p *Policy) escalate(ctx context.Context, a, b model.EntityRecord, d *model.MergeDecision) {
	if !p.llmAssist || p.dis == nil {
		return
	}
	d.Escalated = true

	verdict, err := p.dis.SameEntity(ctx, a, b)
	if err != nil {
		p.log.Warn("disambiguation failed, pair stays flagged",
			zap.String("pair", d.PairKey()),
			zap.Error(err))
		return
	}
	if verdict.Confidence < p.llmConfidence {
		p.log.Debug("disambiguation verdict below confidence floor",
			zap.String("pair", d.PairKey()),
			zap.Bool("same", verdict.Same),
			zap.Float64("confidence", verdict.Confidence))
		return
	}

	if verdict.Same {
		d.State = model.StateAutoMerged
	} else {
		d.State = model.StateDistinct
	}
	d.Method = model.MatchLLMAssisted
	d.Reason = verdict.Reason
}
