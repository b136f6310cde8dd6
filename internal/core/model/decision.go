package model

import "time"

type DecisionState string

const (
	StateAutoMerged       DecisionState = "auto_merged"
	StateFlaggedForReview DecisionState = "flagged_for_review"
	StateDistinct         DecisionState = "distinct"
)

// MergeDecision is the policy verdict on a candidate pair. Flagged
// decisions are persisted as :ReviewFlag nodes until a human resolves
// them.
type MergeDecision struct {
	UUID          string        `json:"uuid"`
	GroupID       string        `json:"group_id"`
	Kind          Kind          `json:"kind"`
	State         DecisionState `json:"state"`
	PrimaryUUID   string        `json:"primary_uuid"`
	SecondaryUUID string        `json:"secondary_uuid"`
	Score         float64       `json:"score"`
	Method        MatchMethod   `json:"method"`
	Reason        string        `json:"reason,omitempty"`
	Signals       Signals       `json:"signals"`
	Escalated     bool          `json:"escalated,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PairKey is order-independent so a pair is flagged at most once.
func (d MergeDecision) PairKey() string {
	return PairKey(d.PrimaryUUID, d.SecondaryUUID)
}

func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
