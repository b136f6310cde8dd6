// Package merge retires duplicate entities into a surviving primary:
// attribute coalescing, alias accumulation, edge rewiring, and
// tombstones that keep stale uuids resolvable.
package merge

import (
	"strings"
	"unicode/utf8"

	"github.com/agenthands/amalgam/internal/core/model"
)

// ChoosePrimary picks the survivor of a pair: longer display name, then
// earlier creation, then smaller uuid. The order is total so merge
// direction never depends on pair orientation.
func ChoosePrimary(a, b model.EntityRecord) (primary, secondary model.EntityRecord) {
	al, bl := utf8.RuneCountInString(a.Name), utf8.RuneCountInString(b.Name)
	if al != bl {
		if al > bl {
			return a, b
		}
		return b, a
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	}
	if a.UUID <= b.UUID {
		return a, b
	}
	return b, a
}

// Plan computes the post-merge state of the primary. Pure: the
// executor persists the result. Primary attributes win; the secondary
// fills gaps. Both names land in the alias list, primary first.
func Plan(primary, secondary model.EntityRecord) model.EntityRecord {
	out := primary
	out.Email = firstNonEmpty(primary.Email, secondary.Email)
	out.Role = firstNonEmpty(primary.Role, secondary.Role)
	out.Affiliation = firstNonEmpty(primary.Affiliation, secondary.Affiliation)
	out.Domain = firstNonEmpty(primary.Domain, secondary.Domain)
	out.Industry = firstNonEmpty(primary.Industry, secondary.Industry)
	out.Aliases = unionAliases(primary, secondary)
	if secondary.Confidence > out.Confidence {
		out.Confidence = secondary.Confidence
	}
	out.Corroborations = primary.Corroborations + secondary.Corroborations
	if secondary.AIConfidence > out.AIConfidence {
		out.AIConfidence = secondary.AIConfidence
	}
	out.Sources = unionSources(primary.Sources, secondary.Sources)
	if !secondary.CreatedAt.IsZero() && (out.CreatedAt.IsZero() || secondary.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = secondary.CreatedAt
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func unionAliases(primary, secondary model.EntityRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	add(primary.Name)
	for _, a := range primary.Aliases {
		add(a)
	}
	add(secondary.Name)
	for _, a := range secondary.Aliases {
		add(a)
	}
	return out
}

func unionSources(a, b []model.Source) []model.Source {
	seen := make(map[model.Source]struct{})
	var out []model.Source
	for _, s := range append(append([]model.Source{}, a...), b...) {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
