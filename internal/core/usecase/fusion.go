package usecase

import (
	"sort"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	chunk         domain.DocumentChunk
	score         float64
	firstSeenRank int
}

// fuseRRF merges ranked hit lists with Reciprocal Rank Fusion. Semantic and
// keyword scores live on incompatible scales, so only rank positions matter:
// each list contributes 1/(k+rank) per chunk, ranks 1-based. A chunk is
// counted at most once per list and accumulates across lists. Ties break by
// the earliest rank at which the chunk was first seen, then by chunk id, so
// the output order is deterministic for identical inputs.
func fuseRRF(lists [][]domain.RetrievalHit, rrfK int) []domain.FusedHit {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	order := make([]string, 0)

	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		rank := 0
		for _, hit := range list {
			id := hit.Chunk.ID
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rank++

			candidate, ok := acc[id]
			if !ok {
				candidate = &fusedCandidate{
					chunk:         hit.Chunk,
					firstSeenRank: rank,
				}
				acc[id] = candidate
				order = append(order, id)
			}
			if candidate.chunk.Text == "" && hit.Chunk.Text != "" {
				candidate.chunk = hit.Chunk
			}
			candidate.score += 1.0 / float64(rrfK+rank)
		}
	}

	out := make([]domain.FusedHit, 0, len(order))
	for _, id := range order {
		c := acc[id]
		out = append(out, domain.FusedHit{Chunk: c.chunk, FusedScore: c.score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if acc[out[i].Chunk.ID].firstSeenRank != acc[out[j].Chunk.ID].firstSeenRank {
			return acc[out[i].Chunk.ID].firstSeenRank < acc[out[j].Chunk.ID].firstSeenRank
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// namespaceLists flattens per-namespace results into the ordered list-of-lists
// fusion input: semantic before keyword, namespaces in routing order.
func namespaceLists(results []domain.NamespaceResult) [][]domain.RetrievalHit {
	lists := make([][]domain.RetrievalHit, 0, len(results)*2)
	for _, r := range results {
		if len(r.Semantic) > 0 {
			lists = append(lists, r.Semantic)
		}
		if len(r.Keyword) > 0 {
			lists = append(lists, r.Keyword)
		}
	}
	return lists
}
