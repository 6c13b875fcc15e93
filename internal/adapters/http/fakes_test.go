package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/config"
	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Title:       "file",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_file.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type documentsFake struct {
	mu          sync.Mutex
	err         error
	deleted     []string
	reprocessed []string
}

func (f *documentsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", Status: domain.StatusReady}, nil
}

func (f *documentsFake) Reprocess(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reprocessed = append(f.reprocessed, id)
	return nil
}

func (f *documentsFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *documentsFake) HandleEvent(context.Context, domain.DocumentEvent) error {
	return nil
}

type chatFake struct {
	err     error
	lastReq domain.ChatRequest
}

func (f *chatFake) Answer(_ context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatAnswer{
		Text:        "25 days",
		Sources:     []domain.SourceRef{{DocumentID: "doc-1", ChunkIndex: 2, Title: "Handbook"}},
		CacheStatus: domain.CacheL1,
		TokensUsed:  150,
		Cost:        domain.Money{USD: 0.0001, XAF: 0.065596},
	}, nil
}

type cacheAdminFake struct {
	stats    []domain.DailyCacheStatistics
	lastDays int
	purged   int
	resetErr error
	removed  map[string]int
}

func (f *cacheAdminFake) PurgeExpired(context.Context) (int, error) {
	return f.purged, nil
}

func (f *cacheAdminFake) RollupStatistics(_ context.Context, day time.Time) (*domain.DailyCacheStatistics, error) {
	return &domain.DailyCacheStatistics{Date: domain.StatsDay(day)}, nil
}

func (f *cacheAdminFake) Statistics(context.Context, time.Time, time.Time) ([]domain.DailyCacheStatistics, error) {
	return f.stats, nil
}

func (f *cacheAdminFake) StatisticsForDays(_ context.Context, days int) ([]domain.DailyCacheStatistics, error) {
	f.lastDays = days
	return f.stats, nil
}

func (f *cacheAdminFake) ResetTTL(_ context.Context, entryID string) (*domain.CacheEntry, error) {
	if f.resetErr != nil {
		return nil, f.resetErr
	}
	return &domain.CacheEntry{ID: entryID, ExpiresAt: time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *cacheAdminFake) InvalidateDocument(_ context.Context, documentID string) (int, error) {
	return f.removed[documentID], nil
}

type settingsFake struct {
	err     error
	reloads int
}

func (f *settingsFake) Current() domain.Settings {
	return domain.DefaultSettings()
}

func (f *settingsFake) Reload(context.Context) error {
	f.reloads++
	return f.err
}

type testDeps struct {
	ingest   ingestFake
	docs     *documentsFake
	chat     *chatFake
	cache    *cacheAdminFake
	settings *settingsFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		docs:     &documentsFake{},
		chat:     &chatFake{},
		cache:    &cacheAdminFake{removed: map[string]int{}},
		settings: &settingsFake{},
	}
}

func (d *testDeps) services() Services {
	return Services{
		Ingest:    d.ingest,
		Documents: d.docs,
		Lifecycle: d.docs,
		Chat:      d.chat,
		Cache:     d.cache,
		Settings:  d.settings,
	}
}

func (d *testDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, d.services()).Handler()
}

var errBoom = errors.New("boom")
