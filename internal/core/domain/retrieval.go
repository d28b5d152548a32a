package domain

// Namespace selects a logical document partition.
type Namespace string

const (
	NamespaceDisease Namespace = "disease"
	NamespaceScheme  Namespace = "scheme"
)

type RetrievalMethod string

const (
	MethodSemantic RetrievalMethod = "semantic"
	MethodKeyword  RetrievalMethod = "keyword"
)

// DocumentChunk is owned by the external document store; the pipeline
// treats it as read-only. Page is 0 when the source has no page metadata.
type DocumentChunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Page      int       `json:"page,omitempty"`
	Namespace Namespace `json:"namespace"`
}

// RetrievalHit scores are method-local: semantic cosine similarity and
// keyword BM25 live on different scales and are never compared directly.
type RetrievalHit struct {
	Chunk  DocumentChunk   `json:"chunk"`
	Score  float64         `json:"score"`
	Method RetrievalMethod `json:"method"`
}

// FusedHit rank is 1-based and strictly increasing with decreasing score.
type FusedHit struct {
	Chunk      DocumentChunk `json:"chunk"`
	FusedScore float64       `json:"fused_score"`
	Rank       int           `json:"rank"`
}

type RerankedHit struct {
	Chunk          DocumentChunk `json:"chunk"`
	RelevanceScore float64       `json:"relevance_score"`
}

// NamespaceResult keeps the per-method lists separate until fusion.
type NamespaceResult struct {
	Namespace Namespace
	Semantic  []RetrievalHit
	Keyword   []RetrievalHit
}

func (r NamespaceResult) Empty() bool {
	return len(r.Semantic) == 0 && len(r.Keyword) == 0
}
