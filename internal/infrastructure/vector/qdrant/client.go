package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

// Embedder turns query text into the vector qdrant searches with.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client implements semantic search against qdrant's REST API, one
// collection per namespace. Point payloads carry chunk text and source
// metadata; chunks with bare payloads are materialized through the
// document lookup.
type Client struct {
	baseURL     string
	collections map[domain.Namespace]string
	embedder    Embedder
	chunks      ports.ChunkLookup
	httpClient  *http.Client
}

func New(baseURL string, collections map[domain.Namespace]string, embedder Embedder, chunks ports.ChunkLookup) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collections: collections,
		embedder:    embedder,
		chunks:      chunks,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Search(ctx context.Context, namespace domain.Namespace, queryText string, topN int) ([]domain.RetrievalHit, error) {
	collection, ok := c.collections[namespace]
	if !ok {
		return nil, fmt.Errorf("no collection configured for namespace %q", namespace)
	}

	vector, err := c.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topN,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievalHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := domain.DocumentChunk{
			ID:        getStringPayload(r.Payload, "chunk_id"),
			Text:      getStringPayload(r.Payload, "text"),
			Source:    getStringPayload(r.Payload, "source"),
			Page:      getIntPayload(r.Payload, "page"),
			Namespace: namespace,
		}
		if chunk.ID == "" {
			chunk.ID = fmt.Sprintf("%v", r.ID)
		}
		if chunk.Text == "" || chunk.Source == "" {
			if full, err := c.chunks.GetChunk(ctx, chunk.ID); err == nil {
				chunk = *full
				chunk.Namespace = namespace
			}
		}
		out = append(out, domain.RetrievalHit{
			Chunk:  chunk,
			Score:  r.Score,
			Method: domain.MethodSemantic,
		})
	}
	return out, nil
}

// Ping reports collection availability for /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant ping status: %s", resp.Status)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
