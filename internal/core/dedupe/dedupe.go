// Package dedupe is the LLM escalation tier of the resolution policy:
// pairs the heuristic scorer cannot settle are put to a model under a
// strict JSON contract.
package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/core/common"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/llm"
)

// Verdict is the full response schema. Anything the model returns that
// does not validate against it is treated as a failed call.
type Verdict struct {
	Same       bool    `json:"same"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const defaultTimeout = 10 * time.Second

// maxAttempts is the first call plus exactly one retry.
const maxAttempts = 2

type Disambiguator struct {
	llm     llm.LLMClient
	timeout time.Duration
	log     *zap.Logger
}

func NewDisambiguator(client llm.LLMClient, timeout time.Duration, log *zap.Logger) *Disambiguator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Disambiguator{
		llm:     client,
		timeout: timeout,
		log:     log.Named("dedupe"),
	}
}

// SameEntity asks whether a and b describe one real-world entity. Each
// attempt runs under its own hard timeout; after the retry budget is
// spent the caller gets a DisambiguationError and should fall back to
// "no opinion".
func (d *Disambiguator) SameEntity(ctx context.Context, a, b model.EntityRecord) (Verdict, error) {
	prompt := buildPrompt(a, b)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		verdict, err := d.ask(ctx, prompt)
		if err == nil {
			return verdict, nil
		}
		lastErr = err
		d.log.Warn("disambiguation attempt failed",
			zap.Int("attempt", attempt),
			zap.String("a_uuid", a.UUID),
			zap.String("b_uuid", b.UUID),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return Verdict{}, &DisambiguationError{PairA: a.UUID, PairB: b.UUID, Err: lastErr}
}

func (d *Disambiguator) ask(ctx context.Context, prompt string) (Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	response, err := d.llm.Generate(callCtx, prompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("generate: %w", err)
	}
	verdict, err := common.ParseJSON[Verdict](response)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse: %w", err)
	}
	if err := validate(verdict); err != nil {
		return Verdict{}, fmt.Errorf("schema: %w", err)
	}
	return verdict, nil
}

func validate(v Verdict) error {
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	if strings.TrimSpace(v.Reason) == "" {
		return fmt.Errorf("empty reason")
	}
	return nil
}

func buildPrompt(a, b model.EntityRecord) string {
	return fmt.Sprintf(`You are resolving duplicate entities in a knowledge graph.

<ENTITY A>
%s</ENTITY A>

<ENTITY B>
%s</ENTITY B>

Do ENTITY A and ENTITY B refer to the same real-world %s?

Respond with ONLY a JSON object, no prose, exactly this schema:
{"same": true|false, "confidence": 0.0-1.0, "reason": "one sentence"}`,
		describe(a), describe(b), a.Kind)
}

func describe(e model.EntityRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\n", e.Name)
	if e.Email != "" {
		fmt.Fprintf(&b, "email: %s\n", e.Email)
	}
	if e.Role != "" {
		fmt.Fprintf(&b, "role: %s\n", e.Role)
	}
	if e.Affiliation != "" {
		fmt.Fprintf(&b, "affiliation: %s\n", e.Affiliation)
	}
	if e.Domain != "" {
		fmt.Fprintf(&b, "domain: %s\n", e.Domain)
	}
	if e.Industry != "" {
		fmt.Fprintf(&b, "industry: %s\n", e.Industry)
	}
	if len(e.Aliases) > 0 {
		fmt.Fprintf(&b, "also known as: %s\n", strings.Join(e.Aliases, ", "))
	}
	return b.String()
}
