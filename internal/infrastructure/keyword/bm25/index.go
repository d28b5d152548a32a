package bm25

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ChunkSource supplies a namespace's corpus; implemented by the postgres
// chunk repository.
type ChunkSource interface {
	ListChunks(ctx context.Context, namespace domain.Namespace) ([]domain.DocumentChunk, error)
}

// Index is an in-memory BM25 Okapi index per namespace. It hydrates from
// the chunk source at startup and rebuilds when the ingestion side signals
// a corpus change. Searches run against a snapshot, so a rebuild never
// blocks readers beyond the pointer swap.
type Index struct {
	source ChunkSource

	mu         sync.RWMutex
	namespaces map[domain.Namespace]*namespaceIndex
}

type namespaceIndex struct {
	chunks    []domain.DocumentChunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int
}

func NewIndex(source ChunkSource) *Index {
	return &Index{
		source:     source,
		namespaces: make(map[domain.Namespace]*namespaceIndex),
	}
}

// Hydrate builds every given namespace; a failure on one namespace does not
// abort the others.
func (idx *Index) Hydrate(ctx context.Context, namespaces []domain.Namespace) error {
	var firstErr error
	for _, ns := range namespaces {
		if err := idx.Rebuild(ctx, ns); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (idx *Index) Rebuild(ctx context.Context, namespace domain.Namespace) error {
	chunks, err := idx.source.ListChunks(ctx, namespace)
	if err != nil {
		return fmt.Errorf("load corpus for %s: %w", namespace, err)
	}

	built := buildNamespaceIndex(chunks)

	idx.mu.Lock()
	idx.namespaces[namespace] = built
	idx.mu.Unlock()
	return nil
}

func (idx *Index) Search(ctx context.Context, namespace domain.Namespace, queryText string, topN int) ([]domain.RetrievalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	ns, ok := idx.namespaces[namespace]
	idx.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("keyword index not built for namespace %q", namespace)
	}
	if len(ns.chunks) == 0 {
		return nil, nil
	}

	queryTokens := tokenizeAlphaNum(queryText)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, 0, topN)
	n := float64(len(ns.chunks))

	for i := range ns.chunks {
		var score float64
		for _, term := range queryTokens {
			tf := float64(ns.termFreqs[i][term])
			if tf == 0 {
				continue
			}
			df := float64(ns.docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := 1 - b + b*float64(ns.docLens[i])/ns.avgDocLen
			score += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
		if score > 0 {
			results = append(results, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].idx < results[j].idx
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}

	out := make([]domain.RetrievalHit, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RetrievalHit{
			Chunk:  ns.chunks[r.idx],
			Score:  r.score,
			Method: domain.MethodKeyword,
		})
	}
	return out, nil
}

// Ready reports whether every given namespace has a built index; used by
// /health.
func (idx *Index) Ready(namespaces []domain.Namespace) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, ns := range namespaces {
		if _, ok := idx.namespaces[ns]; !ok {
			return false
		}
	}
	return true
}

func buildNamespaceIndex(chunks []domain.DocumentChunk) *namespaceIndex {
	ns := &namespaceIndex{
		chunks:    chunks,
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		docFreq:   make(map[string]int),
	}

	totalLen := 0
	for i, chunk := range chunks {
		tokens := tokenizeAlphaNum(chunk.Text)
		freq := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freq[token]++
		}
		ns.termFreqs[i] = freq
		ns.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for token := range freq {
			ns.docFreq[token]++
		}
	}
	if len(chunks) > 0 {
		ns.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	if ns.avgDocLen == 0 {
		ns.avgDocLen = 1
	}
	return ns
}
