package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/civiclens/planrag/internal/core/ports"
)

// queryRewriter asks the chat model for an alternative phrasing of a failed
// query. It declines once the distinct-attempt cap is reached, which bounds
// the loop independently of the iteration cap and prevents oscillation
// between equivalent phrasings.
type queryRewriter struct {
	chat               ports.ChatModel
	maxDistinctQueries int
}

func newQueryRewriter(chat ports.ChatModel, maxDistinctQueries int) *queryRewriter {
	if maxDistinctQueries <= 0 {
		maxDistinctQueries = 4
	}
	return &queryRewriter{chat: chat, maxDistinctQueries: maxDistinctQueries}
}

// rewrite returns (query, true, nil) with a new phrasing, or ok=false when it
// declines. Technical failure reasons never produce a rewrite.
func (r *queryRewriter) rewrite(
	ctx context.Context,
	originalQuery string,
	previousAttempts []string,
	failureReason string,
) (string, bool, error) {
	if failureReason != failureNoSources && failureReason != failureLowRelevance && failureReason != failureTooFewSources {
		return "", false, nil
	}
	if countDistinct(previousAttempts) >= r.maxDistinctQueries {
		return "", false, nil
	}

	completion, err := r.chat.Complete(ctx,
		buildRewriteSystemPrompt(failureReason),
		buildRewriteUserPrompt(originalQuery, previousAttempts),
	)
	if err != nil {
		return "", false, fmt.Errorf("rewrite completion: %w", err)
	}

	rewritten := strings.TrimSpace(strings.Trim(strings.TrimSpace(completion.Text), `"`))
	if rewritten == "" {
		return "", false, fmt.Errorf("empty rewrite result")
	}
	for _, attempt := range previousAttempts {
		if strings.EqualFold(strings.TrimSpace(attempt), rewritten) {
			return "", false, nil
		}
	}
	return rewritten, true, nil
}

func countDistinct(attempts []string) int {
	seen := make(map[string]struct{}, len(attempts))
	for _, attempt := range attempts {
		seen[strings.ToLower(strings.TrimSpace(attempt))] = struct{}{}
	}
	return len(seen)
}

func buildRewriteSystemPrompt(failureReason string) string {
	hint := "surface different document fragments"
	switch failureReason {
	case failureNoSources:
		hint = "use broader wording and common synonyms, the previous phrasing matched nothing"
	case failureLowRelevance:
		hint = "make the subject explicit and add planning-domain synonyms"
	case failureTooFewSources:
		hint = "generalize slightly so related ordinance articles also match"
	}

	return fmt.Sprintf(`You rephrase municipal planning questions for document retrieval.
Produce ONE alternative phrasing that keeps the exact meaning but would %s.
Keep zoning codes and references exactly as written.
Keep the same language as the input.
Return only the rephrased question.`, hint)
}

func buildRewriteUserPrompt(originalQuery string, previousAttempts []string) string {
	var b strings.Builder
	b.WriteString("Original question:\n")
	b.WriteString(originalQuery)
	if len(previousAttempts) > 1 {
		b.WriteString("\n\nAlready tried (do not repeat):\n")
		for _, attempt := range previousAttempts {
			b.WriteString("- ")
			b.WriteString(attempt)
			b.WriteString("\n")
		}
	}
	return b.String()
}
