package usecase

import "regexp"

// Lexical anchor lists per supported language. Detection is indicator-based:
// each regexp counts at most once, and a language is only selected when it
// accumulates at least two independent hits. Anything weaker falls back to
// English.
const (
	langCatalan  = "ca"
	langSpanish  = "es"
	langEnglish  = "en"
	fallbackLang = langEnglish

	minIndicatorHits = 2
)

var languageIndicators = map[string][]*regexp.Regexp{
	langCatalan: compileIndicators(
		`(?i)\b(els|les|uns|unes|aquest|aquesta|això)\b`,
		`(?i)\b(què|quin|quina|quins|quines|quant|quanta)\b`,
		`(?i)\b(per què|com es|on es|es pot|hi ha|puc)\b`,
		`(?i)\b(alçada|aparcament|edificabilitat|qualificació|planejament|normativa|sòl|façana|clau|habitatge)\b`,
		`(?i)\b(és|són|està|seria|tinc)\b`,
	),
	langSpanish: compileIndicators(
		`(?i)\b(los|las|unos|unas|este|esta|esto)\b`,
		`(?i)\b(qué|cuál|cuáles|cuánto|cuánta|dónde|cuándo)\b`,
		`(?i)\b(por qué|cómo|se puede|hay|puedo)\b`,
		`(?i)\b(altura|aparcamiento|edificabilidad|calificación|planeamiento|normativa|suelo|fachada|clave|vivienda)\b`,
		`(?i)\b(es|son|está|sería|tengo)\b`,
	),
	langEnglish: compileIndicators(
		`(?i)\b(the|a|an|this|that|these)\b`,
		`(?i)\b(what|which|how|where|when|why)\b`,
		`(?i)\b(can i|is there|are there|may i|do i)\b`,
		`(?i)\b(height|parking|buildable|zoning|planning|regulation|plot|facade|dwelling)\b`,
		`(?i)\b(is|are|was|would|have)\b`,
	),
}

// detectionOrder keeps tie-breaking deterministic: corpus languages first.
var detectionOrder = []string{langCatalan, langSpanish, langEnglish}

// detectLanguage returns the ISO code of the question's language, or the
// English fallback when no language reaches two independent indicator hits.
func detectLanguage(text string) string {
	if text == "" {
		return fallbackLang
	}

	best := fallbackLang
	bestHits := 0
	for _, lang := range detectionOrder {
		hits := 0
		for _, indicator := range languageIndicators[lang] {
			if indicator.MatchString(text) {
				hits++
			}
		}
		if hits >= minIndicatorHits && hits > bestHits {
			best = lang
			bestHits = hits
		}
	}
	return best
}

func compileIndicators(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
