package domain

import "time"

type IntentLabel string

const (
	IntentDisease IntentLabel = "disease"
	IntentScheme  IntentLabel = "scheme"
	IntentHybrid  IntentLabel = "hybrid"
	IntentUnclear IntentLabel = "unclear"
)

// Intent is produced once per query and never mutated.
type Intent struct {
	Label      IntentLabel `json:"label"`
	Confidence float64     `json:"confidence"`
}

// Query is immutable once created.
type Query struct {
	Text       string    `json:"text"`
	SessionID  string    `json:"session_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Route is the deterministic outcome of intent routing. An empty namespace
// set with NeedsClarification short-circuits retrieval entirely.
type Route struct {
	Namespaces         []Namespace `json:"namespaces"`
	NeedsClarification bool        `json:"needs_clarification"`
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ConversationTurn is append-only; consumers read a bounded window of the
// most recent turns even though the store may retain more.
type ConversationTurn struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Role         TurnRole  `json:"role"`
	Text         string    `json:"text"`
	CitedSources []string  `json:"cited_sources,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Citation struct {
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
}

type AnswerResponse struct {
	Answer         string     `json:"answer"`
	Intent         Intent     `json:"intent"`
	Citations      []Citation `json:"citations"`
	ProcessingTime float64    `json:"processing_time"`
}
