package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type settingsFake struct {
	s domain.Settings
}

func (f *settingsFake) Current() domain.Settings { return f.s }
func (f *settingsFake) Reload(context.Context) error { return nil }

func defaultSettingsFake() *settingsFake {
	return &settingsFake{s: domain.DefaultSettings()}
}

type indexFake struct {
	mu            sync.Mutex
	hits          []domain.IndexHit
	err           error
	embedsQueries bool
	queries       []domain.HybridQuery
	deleted       []string
	upserted      []domain.Chunk
	upsertErr     error
}

func (f *indexFake) Upsert(_ context.Context, _ *domain.Document, chunks []domain.Chunk, _ [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *indexFake) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *indexFake) Query(_ context.Context, q domain.HybridQuery) ([]domain.IndexHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.IndexHit(nil), f.hits...), nil
}

func (f *indexFake) EmbedsQueries() bool { return f.embedsQueries }

func (f *indexFake) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// embedderFake maps query text to vectors; unknown text gets the fallback.
type embedderFake struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	fallback   []float32
	err        error
	queryCalls int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return []float32{1, 0, 0}, nil
}

type generatorFake struct {
	mu          sync.Mutex
	text        string
	err         error
	jsonRaw     string
	jsonErr     error
	answerCalls int
	jsonCalls   int
	lastContext []domain.RetrievedCandidate
	entered     chan struct{}
	release     chan struct{}
}

func (f *generatorFake) GenerateAnswer(ctx context.Context, _ string, candidates []domain.RetrievedCandidate) (domain.Generation, error) {
	f.mu.Lock()
	f.answerCalls++
	f.lastContext = candidates
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.Generation{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.Generation{}, f.err
	}
	text := f.text
	if text == "" {
		text = "answer"
	}
	return domain.Generation{Text: text, Model: "fake-model", PromptTokens: 1000, CompletionTokens: 200}, nil
}

func (f *generatorFake) GenerateJSONFromPrompt(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonCalls++
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	return f.jsonRaw, nil
}

func (f *generatorFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answerCalls
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	created     *domain.Document
	createErr   error
	statusCalls []statusCall
	processed   map[string]int
	deleted     []string
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}, processed: map[string]int{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.created = &copyDoc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *docRepoFake) MarkProcessed(_ context.Context, id string, chunkCount int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: domain.StatusReady})
	f.processed[id] = chunkCount
	if doc, ok := f.docs[id]; ok {
		doc.ProcessedAt = &at
		doc.ChunkCount = chunkCount
	}
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type chunkRepoFake struct {
	chunks map[string][]domain.Chunk
	err    error
}

func (f *chunkRepoFake) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	if f.err != nil {
		return f.err
	}
	if f.chunks == nil {
		f.chunks = map[string][]domain.Chunk{}
	}
	f.chunks[documentID] = chunks
	return nil
}

func (f *chunkRepoFake) ListByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	return f.chunks[documentID], nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	deleted   []string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	events []domain.DocumentEvent
	err    error
}

func (f *queueFake) PublishDocumentEvent(_ context.Context, event domain.DocumentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *queueFake) SubscribeDocumentEvents(context.Context, func(context.Context, domain.DocumentEvent) error) error {
	return errors.New("not implemented")
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type cleanerFake struct {
	dedupCalls int
}

func (f *cleanerFake) Clean(raw string) string { return strings.TrimSpace(raw) }

func (f *cleanerFake) Deduplicate(text string, _ int) string {
	f.dedupCalls++
	return text
}

type chunkerFake struct {
	texts []string
}

func (f *chunkerFake) Chunk(documentID, _ string, _ domain.ChunkParams) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(f.texts))
	for i, t := range f.texts {
		out = append(out, domain.Chunk{DocumentID: documentID, Index: i, Text: t, CharCount: len(t)})
	}
	return out
}

type invalidatorFake struct {
	docs []string
	err  error
}

func (f *invalidatorFake) InvalidateDocument(_ context.Context, documentID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.docs = append(f.docs, documentID)
	return 1, nil
}

type processorFake struct {
	ids []string
	err error
}

func (f *processorFake) ProcessByID(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}
