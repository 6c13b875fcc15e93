// Package openai serves embeddings and generations from the OpenAI API or
// any endpoint compatible with it.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/llm/prompt"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/resilience"
)

const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"

	// maxEmbeddingBatch is the API limit on inputs per embeddings request.
	maxEmbeddingBatch = 100
	jsonSeed          = 42
)

type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// Dimensions is forwarded to embedding models that can shorten vectors.
	Dimensions int
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	dimensions int
	executor   *resilience.Executor
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the resilience executor.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	c := &Client{
		api:        openai.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		dimensions: cfg.Dimensions,
		executor:   cfg.Executor,
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embedModel == "" {
		c.embedModel = DefaultEmbeddingModel
	}
	return c, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := resilience.Do(ctx, c.executor, "openai.embed", func(callCtx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return c.api.Embeddings.New(callCtx, params)
	}, classifyOpenAIError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("openai.embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, item := range data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("openai embed returned an empty vector for input %d", i)
		}
		vector := make([]float32, len(item.Embedding))
		for k, v := range item.Embedding {
			vector[k] = float32(v)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) GenerateAnswer(ctx context.Context, question string, candidates []domain.RetrievedCandidate) (domain.Generation, error) {
	return c.complete(ctx, "openai.generate", openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.Question(question, candidates)),
		},
	})
}

func (c *Client) GenerateJSONFromPrompt(ctx context.Context, text string) (string, error) {
	gen, err := c.complete(ctx, "openai.generate_json", openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.chatModel),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(text)},
		Temperature: openai.Float(0),
		Seed:        openai.Int(jsonSeed),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return "", err
	}
	return gen.Text, nil
}

func (c *Client) complete(ctx context.Context, operation string, params openai.ChatCompletionNewParams) (domain.Generation, error) {
	completion, err := resilience.Do(ctx, c.executor, operation, func(callCtx context.Context) (*openai.ChatCompletion, error) {
		return c.api.Chat.Completions.New(callCtx, params)
	}, classifyOpenAIError)
	if err != nil {
		return domain.Generation{}, wrapTemporaryIfNeeded(operation, err)
	}
	if len(completion.Choices) == 0 {
		return domain.Generation{}, fmt.Errorf("%s: no completion choices returned", operation)
	}

	model := completion.Model
	if model == "" {
		model = c.chatModel
	}
	return domain.Generation{
		Text:             strings.TrimSpace(completion.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}
