package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

// CacheStore is an in-process ports.CacheStore. A single mutex makes every
// operation atomic, which gives the same guarantees the postgres store gets
// from row locks and advisory locks.
type CacheStore struct {
	mu         sync.Mutex
	entries    map[string]*domain.CacheEntry
	byHash     map[string]string
	links      map[string]map[string]struct{} // document id -> entry ids
	tombstones map[string]time.Time
	stats      map[time.Time]domain.DailyCacheStatistics
}

func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries:    make(map[string]*domain.CacheEntry),
		byHash:     make(map[string]string),
		links:      make(map[string]map[string]struct{}),
		tombstones: make(map[string]time.Time),
		stats:      make(map[time.Time]domain.DailyCacheStatistics),
	}
}

func (s *CacheStore) HitByHash(_ context.Context, hash string, update domain.HitUpdate) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	return s.hitLocked(id, update), nil
}

func (s *CacheStore) HitByID(_ context.Context, id string, update domain.HitUpdate) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hitLocked(id, update), nil
}

func (s *CacheStore) hitLocked(id string, update domain.HitUpdate) *domain.CacheEntry {
	entry, ok := s.entries[id]
	if !ok || !entry.IsActive(update.At) {
		return nil
	}
	entry.ApplyHit(update)
	return cloneEntry(entry)
}

func (s *CacheStore) NearestActive(_ context.Context, embedding []float32, threshold float64, now time.Time) (*domain.CacheEntry, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best    *domain.CacheEntry
		bestSim float64
	)
	for _, entry := range s.entries {
		if !entry.IsActive(now) || len(entry.QueryEmbedding) == 0 {
			continue
		}
		sim := domain.CosineSimilarity(embedding, entry.QueryEmbedding)
		if sim < threshold {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && entry.ID < best.ID) {
			best, bestSim = entry, sim
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return cloneEntry(best), bestSim, nil
}

func (s *CacheStore) Upsert(_ context.Context, write domain.CacheWrite) (*domain.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := write.Entry
	docIDs := entry.DocumentIDs()
	for _, docID := range docIDs {
		if at, ok := s.tombstones[docID]; ok && !at.Before(write.RetrievedAt) {
			return nil, false, domain.WrapError(domain.ErrStaleCacheWrite, "upsert cache entry",
				fmt.Errorf("document %s invalidated after retrieval", docID))
		}
	}

	if id, ok := s.byHash[entry.QueryHash]; ok {
		existing := s.entries[id]
		if existing.IsActive(entry.CreatedAt) {
			return cloneEntry(existing), false, nil
		}
		// An expired row still holds the hash until swept; replace it.
		s.deleteLocked(id)
	}

	stored := cloneEntry(&entry)
	s.entries[stored.ID] = stored
	s.byHash[stored.QueryHash] = stored.ID
	for _, docID := range docIDs {
		set, ok := s.links[docID]
		if !ok {
			set = make(map[string]struct{})
			s.links[docID] = set
		}
		set[stored.ID] = struct{}{}
	}
	return cloneEntry(stored), true, nil
}

func (s *CacheStore) InvalidateDocument(_ context.Context, documentID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tombstones[documentID]; !ok || at.After(prev) {
		s.tombstones[documentID] = at
	}
	ids := make([]string, 0, len(s.links[documentID]))
	for id := range s.links[documentID] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.deleteLocked(id)
	}
	return len(ids), nil
}

func (s *CacheStore) PurgeExpired(_ context.Context, now time.Time, tombstonesBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, entry := range s.entries {
		if !entry.IsActive(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.deleteLocked(id)
	}
	for docID, at := range s.tombstones {
		if at.Before(tombstonesBefore) {
			delete(s.tombstones, docID)
		}
	}
	return len(expired), nil
}

func (s *CacheStore) ExtendActive(_ context.Context, id string, now, expiresAt time.Time) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || !entry.IsActive(now) {
		return nil, nil
	}
	entry.ExpiresAt = expiresAt
	return cloneEntry(entry), nil
}

func (s *CacheStore) RecordStats(_ context.Context, day time.Time, delta domain.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day = domain.StatsDay(day)
	row := s.stats[day]
	row.Date = day
	s.stats[day] = row.Apply(delta)
	return nil
}

func (s *CacheStore) RollupStats(_ context.Context, day time.Time) (*domain.DailyCacheStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day = domain.StatsDay(day)
	row := s.stats[day]
	row.Date = day
	row = row.Apply(domain.StatsDelta{})
	s.stats[day] = row
	return &row, nil
}

func (s *CacheStore) ListStats(_ context.Context, from, to time.Time) ([]domain.DailyCacheStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to = domain.StatsDay(from), domain.StatsDay(to)
	out := make([]domain.DailyCacheStatistics, 0)
	for day, row := range s.stats {
		if day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Len reports the number of physically present entries, expired or not.
func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *CacheStore) deleteLocked(id string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	if s.byHash[entry.QueryHash] == id {
		delete(s.byHash, entry.QueryHash)
	}
	for _, docID := range entry.DocumentIDs() {
		if set, ok := s.links[docID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.links, docID)
			}
		}
	}
}

func cloneEntry(e *domain.CacheEntry) *domain.CacheEntry {
	out := *e
	if e.QueryEmbedding != nil {
		out.QueryEmbedding = append([]float32(nil), e.QueryEmbedding...)
	}
	if e.Sources != nil {
		out.Sources = append([]domain.SourceRef(nil), e.Sources...)
	}
	if e.LastHitAt != nil {
		at := *e.LastHitAt
		out.LastHitAt = &at
	}
	return &out
}
