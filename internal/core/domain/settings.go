package domain

import "time"

// Settings is a snapshot of the runtime tunables. Use cases take one snapshot
// per operation.
type Settings struct {
	Chunking  ChunkingSettings  `yaml:"chunking" json:"chunking"`
	Cleaning  CleaningSettings  `yaml:"cleaning" json:"cleaning"`
	Retrieval RetrievalSettings `yaml:"retrieval" json:"retrieval"`
	Cache     CacheSettings     `yaml:"cache" json:"cache"`
	Pricing   Pricing           `yaml:"pricing" json:"pricing"`
}

type ChunkingSettings struct {
	TargetTokens       int  `yaml:"target_tokens" json:"target_tokens"`
	OverlapTokens      int  `yaml:"overlap_tokens" json:"overlap_tokens"`
	MinChars           int  `yaml:"min_chars" json:"min_chars"`
	OptimizeBoundaries bool `yaml:"optimize_boundaries" json:"optimize_boundaries"`
}

type CleaningSettings struct {
	Deduplicate         bool `yaml:"deduplicate" json:"deduplicate"`
	DedupSignatureChars int  `yaml:"dedup_signature_chars" json:"dedup_signature_chars"`
}

type RetrievalSettings struct {
	Alpha         float64 `yaml:"alpha" json:"alpha"`
	TopK          int     `yaml:"top_k" json:"top_k"`
	RerankTopN    int     `yaml:"rerank_top_n" json:"rerank_top_n"`
	RerankEnabled bool    `yaml:"rerank_enabled" json:"rerank_enabled"`
}

type CacheSettings struct {
	Enabled             bool    `yaml:"enabled" json:"enabled"`
	TTLDays             int     `yaml:"ttl_days" json:"ttl_days"`
	SemanticEnabled     bool    `yaml:"semantic_enabled" json:"semantic_enabled"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	ResetTTLOnHit       bool    `yaml:"reset_ttl_on_hit" json:"reset_ttl_on_hit"`
}

func (c CacheSettings) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

func DefaultSettings() Settings {
	return Settings{
		Chunking: ChunkingSettings{
			TargetTokens:       512,
			OverlapTokens:      51,
			MinChars:           50,
			OptimizeBoundaries: true,
		},
		Cleaning: CleaningSettings{
			Deduplicate:         true,
			DedupSignatureChars: 200,
		},
		Retrieval: RetrievalSettings{
			Alpha:         0.75,
			TopK:          10,
			RerankTopN:    3,
			RerankEnabled: true,
		},
		Cache: CacheSettings{
			Enabled:             true,
			TTLDays:             7,
			SemanticEnabled:     true,
			SimilarityThreshold: 0.95,
		},
		Pricing: Pricing{
			InputPerMillionUSD:  0.15,
			OutputPerMillionUSD: 0.60,
			USDToXAF:            655.957,
		},
	}
}

// Normalize replaces out-of-range values with defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()

	if s.Chunking.TargetTokens <= 0 {
		s.Chunking.TargetTokens = def.Chunking.TargetTokens
	}
	if s.Chunking.OverlapTokens < 0 || s.Chunking.OverlapTokens >= s.Chunking.TargetTokens {
		s.Chunking.OverlapTokens = s.Chunking.TargetTokens / 10
	}
	if s.Chunking.MinChars < 0 {
		s.Chunking.MinChars = def.Chunking.MinChars
	}
	if s.Cleaning.DedupSignatureChars <= 0 {
		s.Cleaning.DedupSignatureChars = def.Cleaning.DedupSignatureChars
	}
	if s.Retrieval.Alpha < 0 || s.Retrieval.Alpha > 1 {
		s.Retrieval.Alpha = def.Retrieval.Alpha
	}
	if s.Retrieval.TopK <= 0 {
		s.Retrieval.TopK = def.Retrieval.TopK
	}
	if s.Retrieval.RerankTopN <= 0 {
		s.Retrieval.RerankTopN = def.Retrieval.RerankTopN
	}
	if s.Retrieval.RerankTopN > s.Retrieval.TopK {
		s.Retrieval.RerankTopN = s.Retrieval.TopK
	}
	if s.Cache.TTLDays <= 0 {
		s.Cache.TTLDays = def.Cache.TTLDays
	}
	if s.Cache.SimilarityThreshold <= 0 || s.Cache.SimilarityThreshold > 1 {
		s.Cache.SimilarityThreshold = def.Cache.SimilarityThreshold
	}
	if s.Pricing.InputPerMillionUSD < 0 {
		s.Pricing.InputPerMillionUSD = def.Pricing.InputPerMillionUSD
	}
	if s.Pricing.OutputPerMillionUSD < 0 {
		s.Pricing.OutputPerMillionUSD = def.Pricing.OutputPerMillionUSD
	}
	if s.Pricing.USDToXAF <= 0 {
		s.Pricing.USDToXAF = def.Pricing.USDToXAF
	}
	return s
}

func (s Settings) ChunkParams() ChunkParams {
	return ChunkParams{
		TargetTokens:       s.Chunking.TargetTokens,
		OverlapTokens:      s.Chunking.OverlapTokens,
		MinChars:           s.Chunking.MinChars,
		OptimizeBoundaries: s.Chunking.OptimizeBoundaries,
	}
}
