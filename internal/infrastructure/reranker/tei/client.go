package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/resilience"
)

// Client calls a text-embeddings-inference style /rerank endpoint: the
// cross-encoder jointly scores the query against each candidate text.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	cache      *ScoreCache
}

func New(baseURL string, cache *ScoreCache) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   resilience.NewExecutor(resilience.DefaultConfig()),
		cache:      cache,
	}
}

func (c *Client) Score(ctx context.Context, queryText string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(candidates))
	missing := make([]int, 0, len(candidates))
	for i, text := range candidates {
		if score, ok := c.cache.get(ctx, queryText, text); ok {
			scores[i] = score
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return scores, nil
	}

	texts := make([]string, 0, len(missing))
	for _, i := range missing {
		texts = append(texts, candidates[i])
	}

	fetched, err := c.rerank(ctx, queryText, texts)
	if err != nil {
		if domain.IsKind(err, domain.ErrUpstreamTimeout) || domain.IsKind(err, domain.ErrUpstreamError) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrUpstreamError, "rerank", err)
	}

	for j, i := range missing {
		scores[i] = fetched[j]
		c.cache.put(ctx, queryText, candidates[i], fetched[j])
	}
	return scores, nil
}

func (c *Client) rerank(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	reqBody := map[string]any{
		"query": queryText,
		"texts": texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	var ranked []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}

	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create rerank request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("rerank request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("rerank status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
		}
		ranked = ranked[:0]
		return json.NewDecoder(resp.Body).Decode(&ranked)
	}

	if err := c.executor.Execute(ctx, "tei.rerank", call, classifyRerankError); err != nil {
		if ctx.Err() != nil {
			return nil, domain.WrapError(domain.ErrUpstreamTimeout, "rerank", err)
		}
		return nil, domain.WrapError(domain.ErrUpstreamError, "rerank", err)
	}

	scores := make([]float64, len(texts))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank returned index %d for %d texts", r.Index, len(texts))
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// Ping reports reranker availability for /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reranker ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reranker ping status: %s", resp.Status)
	}
	return nil
}

func classifyRerankError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
