package model

type MatchMethod string

const (
	MatchExact       MatchMethod = "exact"
	MatchHeuristic   MatchMethod = "heuristic"
	MatchLLMAssisted MatchMethod = "llm-assisted"
)

// Signals carries the per-signal contributions of a comparison. A nil
// pointer means the signal was absent on at least one side and took no
// part in the weighted score.
type Signals struct {
	Name        float64  `json:"name"`
	Identifier  *float64 `json:"domain,omitempty"`
	Affiliation *float64 `json:"affiliation,omitempty"`
	Minor       *float64 `json:"role,omitempty"`
	Acronym     bool     `json:"acronym,omitempty"`
}

type SimilarityResult struct {
	AUUID   string      `json:"a_uuid"`
	BUUID   string      `json:"b_uuid"`
	Score   float64     `json:"score"`
	Signals Signals     `json:"signals"`
	Method  MatchMethod `json:"method"`
}
