package ports

import (
	"context"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

// SemanticSearcher performs nearest-neighbor search over one namespace.
type SemanticSearcher interface {
	Search(ctx context.Context, namespace domain.Namespace, queryText string, topN int) ([]domain.RetrievalHit, error)
}

// KeywordSearcher performs BM25 search over one namespace's corpus.
type KeywordSearcher interface {
	Search(ctx context.Context, namespace domain.Namespace, queryText string, topN int) ([]domain.RetrievalHit, error)
}

// RelevanceScorer is a cross-encoder: it jointly scores (query, candidate)
// pairs. Scores are returned in candidate order.
type RelevanceScorer interface {
	Score(ctx context.Context, queryText string, candidates []string) ([]float64, error)
}

// TextGenerator invokes the generative LLM service.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ConversationStore persists per-session turn logs. Append ordering within
// a session is the caller's responsibility; the store only guarantees that
// GetRecent returns turns in chronological order.
type ConversationStore interface {
	Append(ctx context.Context, turn domain.ConversationTurn) error
	GetRecent(ctx context.Context, sessionID string, n int) ([]domain.ConversationTurn, error)
	Clear(ctx context.Context, sessionID string) error
}

// ChunkLookup materializes source/page metadata for citation building.
type ChunkLookup interface {
	GetChunk(ctx context.Context, chunkID string) (*domain.DocumentChunk, error)
}
