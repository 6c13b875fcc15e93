// Package prompt builds the prompts shared by the LLM providers.
package prompt

import (
	"fmt"
	"strings"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

const System = `You answer questions about the organization's internal documents.
Use only the numbered context passages. Cite passages as [n] after the sentences that rely on them.
If the context does not contain the answer, say so plainly and do not guess.
Answer in the language of the question.`

// Context renders the candidates as numbered passages.
func Context(candidates []domain.RetrievedCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s", i+1, c.DocumentTitle)
		if c.PageNumber != nil {
			fmt.Fprintf(&b, " (page %d)", *c.PageNumber)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(c.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Question is the user turn sent with the system prompt.
func Question(question string, candidates []domain.RetrievedCandidate) string {
	if len(candidates) == 0 {
		return fmt.Sprintf("Question:\n%s\n\nContext:\n(no relevant passages were found)\n", question)
	}
	return fmt.Sprintf("Question:\n%s\n\nContext:\n%s", question, Context(candidates))
}

// Answer is the single-string form for completion endpoints without roles.
func Answer(question string, candidates []domain.RetrievedCandidate) string {
	return System + "\n\n" + Question(question, candidates)
}
