package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

type RetrieverConfig struct {
	TopN        int
	CallTimeout time.Duration
}

// HybridRetriever fans a query out to the semantic and keyword backends for
// every routed namespace. The two method calls per namespace run
// concurrently and fail independently: a namespace degrades to whichever
// method succeeded and is unavailable only when both fail.
type HybridRetriever struct {
	semantic ports.SemanticSearcher
	keyword  ports.KeywordSearcher
	cfg      RetrieverConfig
}

func NewHybridRetriever(semantic ports.SemanticSearcher, keyword ports.KeywordSearcher, cfg RetrieverConfig) *HybridRetriever {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	return &HybridRetriever{semantic: semantic, keyword: keyword, cfg: cfg}
}

type methodOutcome struct {
	hits []domain.RetrievalHit
	err  error
}

// Retrieve waits for every method call to settle before returning; fusion
// never runs against a still-pending list. The returned error is non-nil
// only when every routed namespace lost both methods.
func (r *HybridRetriever) Retrieve(ctx context.Context, queryText string, namespaces []domain.Namespace) ([]domain.NamespaceResult, error) {
	if len(namespaces) == 0 {
		return nil, nil
	}

	semanticOut := make([]methodOutcome, len(namespaces))
	keywordOut := make([]methodOutcome, len(namespaces))

	var wg sync.WaitGroup
	for i, ns := range namespaces {
		wg.Add(2)
		go func(i int, ns domain.Namespace) {
			defer wg.Done()
			semanticOut[i] = r.search(ctx, domain.MethodSemantic, ns, queryText)
		}(i, ns)
		go func(i int, ns domain.Namespace) {
			defer wg.Done()
			keywordOut[i] = r.search(ctx, domain.MethodKeyword, ns, queryText)
		}(i, ns)
	}
	wg.Wait()

	results := make([]domain.NamespaceResult, 0, len(namespaces))
	unavailable := 0
	for i, ns := range namespaces {
		sem, kw := semanticOut[i], keywordOut[i]
		if sem.err != nil && kw.err != nil {
			unavailable++
			slog.Warn("namespace_retrieval_unavailable",
				"namespace", ns,
				"semantic_error", sem.err,
				"keyword_error", kw.err,
			)
			continue
		}
		if sem.err != nil {
			slog.Warn("retrieval_degraded", "namespace", ns, "method", domain.MethodSemantic, "error", sem.err)
		}
		if kw.err != nil {
			slog.Warn("retrieval_degraded", "namespace", ns, "method", domain.MethodKeyword, "error", kw.err)
		}
		results = append(results, domain.NamespaceResult{
			Namespace: ns,
			Semantic:  sem.hits,
			Keyword:   kw.hits,
		})
	}

	if unavailable == len(namespaces) {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid retrieve",
			fmt.Errorf("both methods failed for all %d namespaces", len(namespaces)))
	}
	return results, nil
}

func (r *HybridRetriever) search(ctx context.Context, method domain.RetrievalMethod, ns domain.Namespace, queryText string) methodOutcome {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	var hits []domain.RetrievalHit
	var err error
	switch method {
	case domain.MethodSemantic:
		hits, err = r.semantic.Search(callCtx, ns, queryText, r.cfg.TopN)
	default:
		hits, err = r.keyword.Search(callCtx, ns, queryText, r.cfg.TopN)
	}
	if err != nil {
		return methodOutcome{err: err}
	}

	// Downstream stages key off the method tag and namespace.
	for i := range hits {
		hits[i].Method = method
		if hits[i].Chunk.Namespace == "" {
			hits[i].Chunk.Namespace = ns
		}
	}
	return methodOutcome{hits: hits}
}
