package usecase

import (
	"regexp"
	"strings"

	"github.com/civiclens/planrag/internal/core/domain"
)

// Suggested retrieval depths per query class. Code lookups use 7: exact-match
// keyword signal is strong but zoning codes are frequently referenced from
// several ordinance articles at once, so a too-shallow depth loses the
// cross-references.
const (
	topKCodeLookup  = 7
	topKComparative = 10
	topKComplex     = 7
	topKSimple      = 5

	complexLengthThreshold = 100
	complexClauseThreshold = 2
)

var (
	// Bare zoning reference codes: "20a1", "13c", "ZR12".
	bareCodePattern = regexp.MustCompile(`(?i)\b(\d{1,3}[a-z]\d{0,2}|[a-z]{1,3}\d{1,3}[a-z]?\d{0,2})\b`)
	// Keyword-introduced codes: "code 15b", "clau 20a", "qualificació 20a".
	keyedCodePattern = regexp.MustCompile(`(?i)\b(code|codi|clau|clave|key|qualificaci[oó]|calificaci[oó]n|zona|zone)\s+[0-9a-z]{1,6}\b`)

	comparativeTerms = []string{
		"compare", "comparison", "difference", "differences", "versus", "vs.", "vs ",
		"compara", "comparar", "comparació", "comparación",
		"diferència", "diferències", "diferencia", "diferencias",
		"enfront de", "front a", "respecte a", "respecto a",
	}

	clauseSeparators = []string{",", ";", " and ", " i ", " y ", " però ", " pero ", " but "}
)

// classifyQuestion assigns a query class and suggested retrieval depth.
// Rules are evaluated in priority order; the first match wins.
func classifyQuestion(question string) domain.QueryClassification {
	trimmed := strings.TrimSpace(question)
	lower := strings.ToLower(trimmed)

	if keyedCodePattern.MatchString(trimmed) || containsBareCode(trimmed) {
		return domain.QueryClassification{Type: domain.QueryCodeLookup, SuggestedTopK: topKCodeLookup}
	}

	for _, term := range comparativeTerms {
		if strings.Contains(lower, term) {
			return domain.QueryClassification{Type: domain.QueryComparative, SuggestedTopK: topKComparative}
		}
	}

	if len([]rune(trimmed)) > complexLengthThreshold || countClauseSeparators(lower) >= complexClauseThreshold {
		return domain.QueryClassification{Type: domain.QueryComplex, SuggestedTopK: topKComplex}
	}

	return domain.QueryClassification{Type: domain.QuerySimple, SuggestedTopK: topKSimple}
}

// containsBareCode reports whether the question carries a token that looks
// like a zoning reference code. Plain words and plain numbers do not match:
// the token must mix letters and digits.
func containsBareCode(question string) bool {
	for _, match := range bareCodePattern.FindAllString(question, -1) {
		if hasLetter(match) && hasDigit(match) {
			return true
		}
	}
	return false
}

func countClauseSeparators(lower string) int {
	count := 0
	for _, sep := range clauseSeparators {
		count += strings.Count(lower, sep)
	}
	return count
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
