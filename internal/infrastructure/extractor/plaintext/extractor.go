package plaintext

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Extract returns UTF-8 text as is. A leading byte order mark is dropped.
func Extract(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")
	return strings.TrimSpace(text), nil
}
