package domain

// Generation is a completed model response with its token accounting.
type Generation struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

func (g Generation) TotalTokens() int {
	return g.PromptTokens + g.CompletionTokens
}

type CacheStatus string

const (
	CacheMiss CacheStatus = "miss"
	CacheL1   CacheStatus = "l1"
	CacheL2   CacheStatus = "l2"
)

type ChatRequest struct {
	Question string       `json:"question"`
	Filter   SearchFilter `json:"-"`
}

type ChatAnswer struct {
	Text           string      `json:"text"`
	Sources        []SourceRef `json:"sources"`
	CacheStatus    CacheStatus `json:"cache_status"`
	CacheEntryID   string      `json:"cache_entry_id,omitempty"`
	Similarity     float64     `json:"similarity,omitempty"`
	RerankDegraded bool        `json:"rerank_degraded,omitempty"`
	RetrievalError bool        `json:"retrieval_degraded,omitempty"`
	Model          string      `json:"model,omitempty"`
	TokensUsed     int         `json:"tokens_used"`
	Cost           Money       `json:"cost"`
}
