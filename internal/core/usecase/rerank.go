package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

type RerankerConfig struct {
	TopK      int
	BatchSize int
}

// Reranker rescores fused candidates with a cross-encoder and keeps the
// top-K. The fused order only decides ties; the relevance score decides
// everything else.
type Reranker struct {
	scorer ports.RelevanceScorer
	cfg    RerankerConfig
}

func NewReranker(scorer ports.RelevanceScorer, cfg RerankerConfig) *Reranker {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Reranker{scorer: scorer, cfg: cfg}
}

func (r *Reranker) Rerank(ctx context.Context, queryText string, fused []domain.FusedHit) ([]domain.RerankedHit, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	scores := make([]float64, 0, len(fused))
	for start := 0; start < len(fused); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(fused) {
			end = len(fused)
		}
		candidates := make([]string, 0, end-start)
		for _, hit := range fused[start:end] {
			candidates = append(candidates, hit.Chunk.Text)
		}

		batchScores, err := r.scorer.Score(ctx, queryText, candidates)
		if err != nil {
			return nil, fmt.Errorf("cross-encoder score: %w", err)
		}
		if len(batchScores) != len(candidates) {
			return nil, fmt.Errorf("cross-encoder returned %d scores for %d candidates", len(batchScores), len(candidates))
		}
		scores = append(scores, batchScores...)
	}

	out := make([]domain.RerankedHit, len(fused))
	for i, hit := range fused {
		out[i] = domain.RerankedHit{Chunk: hit.Chunk, RelevanceScore: scores[i]}
	}

	// Stable sort keeps fused-rank order between equal relevance scores.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})

	if len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}
	return out, nil
}
