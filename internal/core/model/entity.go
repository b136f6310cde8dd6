package model

import "time"

type Kind string

const (
	KindPerson       Kind = "person"
	KindOrganization Kind = "organization"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPerson, KindOrganization:
		return Kind(s), nil
	default:
		return "", ErrUnknownKind
	}
}

// Source tags where an entity mention came from. Weights live in the
// confidence scorer.
type Source string

const (
	SourceManual       Source = "manual"
	SourceDocument     Source = "document"
	SourceTranscript   Source = "transcript"
	SourceConversation Source = "conversation"
	SourceAIInferred   Source = "ai_inferred"
	SourceUnknown      Source = "unknown"
)

// EntityRecord is a live resolvable entity as stored on an :Entity node.
type EntityRecord struct {
	UUID           string    `json:"uuid"`
	GroupID        string    `json:"group_id"`
	Kind           Kind      `json:"kind"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`       // person
	Role           string    `json:"role,omitempty"`        // person
	Affiliation    string    `json:"affiliation,omitempty"` // person
	Domain         string    `json:"domain,omitempty"`      // organization
	Industry       string    `json:"industry,omitempty"`    // organization
	Aliases        []string  `json:"aliases,omitempty"`
	Confidence     float64   `json:"confidence"`
	Corroborations int       `json:"corroborations"`
	AIConfidence   float64   `json:"ai_confidence,omitempty"`
	Sources        []Source  `json:"sources,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (e EntityRecord) Validate() error {
	if e.Name == "" {
		return ErrMissingDisplayName
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	return nil
}

// EntityInput is the ingest payload from the extraction pipeline.
type EntityInput struct {
	UUID         string   `json:"uuid,omitempty"`
	GroupID      string   `json:"group_id"`
	Kind         Kind     `json:"kind"`
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role,omitempty"`
	Affiliation  string   `json:"affiliation,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
	Source       Source   `json:"source,omitempty"`
	AIConfidence float64  `json:"ai_confidence,omitempty"`
	Occurrences  int      `json:"occurrences,omitempty"`
	PartialMatch bool     `json:"partial_match,omitempty"`
}
