package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/llm/prompt"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/resilience"
)

// jsonSeed pins sampling for scoring prompts so reranks are repeatable.
const jsonSeed = 42

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client    *Client
	batchSize int
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client, batchSize: 64}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	for i, vector := range response.Embeddings {
		if len(vector) == 0 {
			return nil, fmt.Errorf("ollama embed returned an empty vector for input %d", i)
		}
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, candidates []domain.RetrievedCandidate) (domain.Generation, error) {
	return g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"system": prompt.System,
		"prompt": prompt.Question(question, candidates),
		"stream": false,
	})
}

// GenerateJSONFromPrompt asks for a JSON object with deterministic sampling.
func (g *Generator) GenerateJSONFromPrompt(ctx context.Context, text string) (string, error) {
	gen, err := g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"prompt": text,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
			"seed":        jsonSeed,
		},
	})
	if err != nil {
		return "", err
	}
	return gen.Text, nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (domain.Generation, error) {
	var response struct {
		Model           string `json:"model"`
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return domain.Generation{}, err
	}
	model := response.Model
	if model == "" {
		model = c.genModel
	}
	return domain.Generation{
		Text:             strings.TrimSpace(response.Response),
		Model:            model,
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}, nil
}
