package tokenizer

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Counter counts tokens with a tiktoken encoding. Without one it estimates
// four characters per token, which moves chunk boundaries compared to the
// exact count.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New loads the encoding and falls back to the estimate when it cannot.
func New(encoding string, logger *slog.Logger) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("tokenizer_fallback", "encoding", encoding, "error", err, "estimate", "chars/4")
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// NewApproximate never loads an encoding.
func NewApproximate() *Counter {
	return &Counter{}
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

func (c *Counter) Exact() bool {
	return c.enc != nil
}

// Estimate is ceil(runes/4).
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
