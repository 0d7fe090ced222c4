package ollama

import (
	"fmt"
	"strings"

	"github.com/civiclens/planrag/internal/core/domain"
)

const maxFragmentChars = 4000

func buildAnswerSystemPrompt(municipalityName string) string {
	return fmt.Sprintf(`You answer questions about the urban planning regulations of %s.
Use ONLY the numbered fragments in the context block. Do not use outside knowledge.
Cite fragments by index, like [1] or [2][3], next to each claim they support.
Quote zoning codes, heights and percentages exactly as written in the fragments.
If the fragments do not contain the answer, say so directly instead of guessing.
Answer in the language of the question.`, municipalityName)
}

func buildAnswerUserPrompt(question string, chunks []domain.ScoredCandidate) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	for idx, chunk := range chunks {
		text := chunk.Text
		if len(text) > maxFragmentChars {
			text = text[:maxFragmentChars]
		}
		fmt.Fprintf(&b, "[%d] %s (%s, fragment %d, score %.3f)\n%s\n\n",
			idx+1,
			chunk.DocumentTitle,
			chunk.DocumentURL,
			chunk.ChunkIndex,
			chunk.CombinedScore,
			text,
		)
	}
	return b.String()
}
