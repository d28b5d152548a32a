package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client speaks the Ollama REST API. Generation and embedding share one
// connection pool; per-request deadlines come from the caller's context.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

// Ping reports whether the Ollama server answers at all; used by /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama ping status: %s", resp.Status)
	}
	return nil
}

// Generator implements the text generation port.
type Generator struct {
	client *Client
	runner *resilientRunner
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, runner: newResilientRunner()}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	})
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (g *Generator) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := g.runner.run(ctx, "ollama.generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// Embedder builds query vectors for the semantic search adapter.
type Embedder struct {
	client *Client
	runner *resilientRunner
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client, runner: newResilientRunner()}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.runner.run(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}
