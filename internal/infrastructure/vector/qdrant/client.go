package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client is a hybrid index over one Qdrant collection holding a dense
// vector and a BM25 sparse vector per chunk.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedsQueries is false: callers supply the dense query vector.
func (c *Client) EmbedsQueries() bool {
	return false
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	title := doc.DisplayTitle()
	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"document_id":    doc.ID,
			"document_title": title,
			"category":       doc.Category,
			"chunk_index":    chunk.Index,
			"text":           chunk.Text,
		}
		if chunk.PageNumber != nil {
			payload["page_number"] = *chunk.PageNumber
		}
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:  vectors[i],
				sparseVectorName: encodeSparseDocument(chunk.Text, title),
			},
			Payload: payload,
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{matchValue("document_id", documentID)},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.do(ctx, "delete", http.MethodPost, path, body, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Query runs the dense and the sparse search in one batch request and joins
// the two result lists by point id. A chunk found by one signal only scores
// zero on the other.
func (c *Client) Query(ctx context.Context, query domain.HybridQuery) ([]domain.IndexHit, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	filter := buildFilter(query.Filter)

	type signal int
	const (
		semantic signal = iota
		lexical
	)
	var (
		searches []map[string]any
		signals  []signal
	)
	if len(query.Vector) > 0 {
		searches = append(searches, searchRequest(query.Vector, denseVectorName, limit, filter))
		signals = append(signals, semantic)
	}
	if sparse := encodeSparseQuery(query.Text); len(sparse.Indices) > 0 {
		searches = append(searches, searchRequest(sparse, sparseVectorName, limit, filter))
		signals = append(signals, lexical)
	}
	if len(searches) == 0 {
		return nil, nil
	}

	var response struct {
		Result []struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query/batch", c.collection)
	err := c.do(ctx, "query", http.MethodPost, path, map[string]any{"searches": searches}, &response)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.IndexHit)
	var order []string
	for i, result := range response.Result {
		if i >= len(signals) {
			break
		}
		for _, p := range result.Points {
			id := fmt.Sprint(p.ID)
			hit, ok := byID[id]
			if !ok {
				hit = hitFromPayload(id, p.Payload)
				byID[id] = hit
				order = append(order, id)
			}
			switch signals[i] {
			case semantic:
				hit.SemanticScore = p.Score
			case lexical:
				hit.LexicalScore = p.Score
			}
		}
	}

	out := make([]domain.IndexHit, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func searchRequest(query any, using string, limit int, filter map[string]any) map[string]any {
	req := map[string]any{
		"query":        query,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		req["filter"] = filter
	}
	return req
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	var must []map[string]any
	if filter.Category != "" {
		must = append(must, matchValue("category", filter.Category))
	}
	if len(filter.DocumentIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filter.DocumentIDs},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchValue(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func hitFromPayload(id string, payload map[string]any) *domain.IndexHit {
	hit := &domain.IndexHit{
		ChunkID:       id,
		DocumentID:    getStringPayload(payload, "document_id"),
		DocumentTitle: getStringPayload(payload, "document_title"),
		Category:      getStringPayload(payload, "category"),
		Text:          getStringPayload(payload, "text"),
	}
	if v, ok := getIntPayload(payload, "chunk_index"); ok {
		hit.ChunkIndex = v
	}
	if v, ok := getIntPayload(payload, "page_number"); ok {
		hit.PageNumber = &v
	}
	return hit
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, "ensure_collection", http.MethodPut, path, reqBody, nil)
	var statusErr *HTTPStatusError
	// 409 when the collection already exists.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}
	if err == nil {
		if err := c.ensurePayloadIndex(ctx, "document_id"); err != nil {
			return err
		}
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) ensurePayloadIndex(ctx context.Context, field string) error {
	path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
	return c.do(ctx, "ensure_index", http.MethodPut, path, map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}, nil)
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	err = c.executor.Execute(ctx, "qdrant."+operation, call, classifyQdrantError)
	return wrapTemporaryIfNeeded("qdrant."+operation, err)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
