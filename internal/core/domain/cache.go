package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

// CacheEntry is one cached answer. QueryHash is unique across entries.
type CacheEntry struct {
	ID                string      `json:"id"`
	QueryText         string      `json:"query_text"`
	QueryHash         string      `json:"query_hash"`
	QueryEmbedding    []float32   `json:"-"`
	Answer            string      `json:"answer"`
	Sources           []SourceRef `json:"sources"`
	Model             string      `json:"model,omitempty"`
	TokenCount        int         `json:"token_count"`
	GenerationCostUSD float64     `json:"generation_cost_usd"`
	HitCount          int64       `json:"hit_count"`
	CostSaved         Money       `json:"cost_saved"`
	CreatedAt         time.Time   `json:"created_at"`
	LastHitAt         *time.Time  `json:"last_hit_at,omitempty"`
	ExpiresAt         time.Time   `json:"expires_at"`
}

type CacheEntryState string

const (
	CacheEntryActive  CacheEntryState = "active"
	CacheEntryExpired CacheEntryState = "expired"
)

func (e *CacheEntry) State(now time.Time) CacheEntryState {
	if now.Before(e.ExpiresAt) {
		return CacheEntryActive
	}
	return CacheEntryExpired
}

func (e *CacheEntry) IsActive(now time.Time) bool {
	return e.State(now) == CacheEntryActive
}

// DocumentIDs lists the distinct documents the answer cites.
func (e *CacheEntry) DocumentIDs() []string {
	return DistinctDocumentIDs(e.Sources)
}

// CacheDocumentLink ties an entry to a document that justified its answer.
// It only drives invalidation.
type CacheDocumentLink struct {
	CacheEntryID string
	DocumentID   string
}

// CacheWrite is a new entry plus the moment its sources were retrieved.
// Invalidations of any source document at or after RetrievedAt make the
// write stale.
type CacheWrite struct {
	Entry       CacheEntry
	RetrievedAt time.Time
}

// CacheHit is a successful L1 or L2 lookup. Entry reflects the state after
// the hit was recorded.
type CacheHit struct {
	Entry      CacheEntry
	Level      CacheStatus
	Similarity float64
}

// HitUpdate is applied atomically with the hit count increment. The entry's
// own GenerationCostUSD is added to CostSaved, converted at USDToXAF.
type HitUpdate struct {
	At       time.Time
	USDToXAF float64
	// ExtendTo, when set, pushes an active entry's expiration forward.
	ExtendTo *time.Time
}

// ApplyHit mutates the entry the way a store records one hit.
func (e *CacheEntry) ApplyHit(u HitUpdate) {
	at := u.At
	e.HitCount++
	e.LastHitAt = &at
	e.CostSaved = e.CostSaved.Add(Money{
		USD: e.GenerationCostUSD,
		XAF: roundMoney(e.GenerationCostUSD * u.USDToXAF),
	})
	if u.ExtendTo != nil && u.ExtendTo.After(e.ExpiresAt) {
		e.ExpiresAt = *u.ExtendTo
	}
}

// NormalizeQuery trims, casefolds and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// QueryHash is the hex SHA-256 of the normalized query.
func QueryHash(q string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(q)))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DailyCacheStatistics aggregates one calendar day (UTC).
type DailyCacheStatistics struct {
	Date          time.Time `json:"date"`
	TotalRequests int64     `json:"total_requests"`
	CacheHits     int64     `json:"cache_hits"`
	CacheMisses   int64     `json:"cache_misses"`
	HitRate       float64   `json:"hit_rate"`
	TokensSaved   int64     `json:"tokens_saved"`
	CostSaved     Money     `json:"cost_saved"`
}

// StatsDelta is one lookup's contribution to the daily row.
type StatsDelta struct {
	Requests    int64
	Hits        int64
	Misses      int64
	TokensSaved int64
	CostSaved   Money
}

func MissDelta() StatsDelta {
	return StatsDelta{Requests: 1, Misses: 1}
}

func HitDelta(tokens int, saved Money) StatsDelta {
	return StatsDelta{Requests: 1, Hits: 1, TokensSaved: int64(tokens), CostSaved: saved}
}

// Apply adds the delta and recomputes the hit rate.
func (s DailyCacheStatistics) Apply(d StatsDelta) DailyCacheStatistics {
	s.TotalRequests += d.Requests
	s.CacheHits += d.Hits
	s.CacheMisses += d.Misses
	s.TokensSaved += d.TokensSaved
	s.CostSaved = s.CostSaved.Add(d.CostSaved)
	s.HitRate = ComputeHitRate(s.CacheHits, s.TotalRequests)
	return s
}

// ComputeHitRate is hits/total*100, or 0 for an empty day.
func ComputeHitRate(hits, total int64) float64 {
	if total <= 0 || hits <= 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// StatsDay truncates t to its UTC calendar day.
func StatsDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
