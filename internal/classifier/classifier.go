// Package classifier scores DistilledSections as instructional or not via a
// deterministic additive/subtractive heuristic, then filters on a fixed
// threshold.
package classifier

import (
	"regexp"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/distiller"
)

// Classification is the scored verdict for a section.
type Classification struct {
	IsInstructional bool
	Score           float64
	Reasons         []string
}

var wordRE = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]*`)

var nonInstructionalPhrases = []string{
	"table of contents", "toc", "subscribe", "sign in", "log in", "login",
	"cookie policy", "privacy policy", "terms of service", "copyright",
	"all rights reserved", "newsletter", "advertisement", "sponsored",
	"share this", "edit this page", "last updated",
}

var nonInstructionalHints = []string{
	"next", "previous", "page", "breadcrumbs", "cookie", "consent",
	"tracking", "analytics", "github", "twitter", "linkedin",
}

var instructionalVerbs = map[string]bool{
	"run": true, "use": true, "create": true, "configure": true, "deploy": true,
	"install": true, "set": true, "enable": true, "disable": true,
	"define": true, "apply": true, "initialize": true, "init": true,
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Classify scores a single section, following a threshold of 0.5 for "kept".
func Classify(sec distiller.Section) Classification {
	kind := normalize(sec.Kind)
	title := normalize(sec.Title)
	text := normalize(sec.CleanText)

	if text == "" {
		return Classification{false, -10.0, []string{"empty_text"}}
	}

	var reasons []string
	score := 0.0

	switch kind {
	case "howto", "example", "definition":
		score += 3.0
		reasons = append(reasons, "kind:"+kind)
	case "note", "explanation":
		score += 1.0
		reasons = append(reasons, "kind:"+kind)
	}

	for _, phrase := range nonInstructionalPhrases {
		if strings.Contains(title, phrase) || strings.Contains(text, phrase) {
			score -= 6.0
			reasons = append(reasons, "non_instr_phrase:"+phrase)
		}
	}
	for _, hint := range nonInstructionalHints {
		if strings.Contains(title, hint) || strings.Contains(text, hint) {
			score -= 1.0
			reasons = append(reasons, "non_instr_hint:"+hint)
		}
	}

	if strings.Contains(title, "table of contents") || strings.HasPrefix(text, "table of contents") {
		score -= 8.0
		reasons = append(reasons, "toc")
	}

	words := wordRE.FindAllString(text, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	verbHits := 0
	for _, w := range words {
		if instructionalVerbs[w] {
			verbHits++
		}
	}
	if verbHits > 0 {
		bonus := 0.5 * float64(verbHits)
		if bonus > 2.0 {
			bonus = 2.0
		}
		score += bonus
		reasons = append(reasons, "verb_hits")
	}

	if len(words) > 0 {
		short := 0
		for _, w := range words {
			if len(w) <= 3 {
				short++
			}
		}
		ratio := float64(short) / float64(len(words))
		if ratio > 0.55 && len(words) >= 12 {
			score -= 2.0
			reasons = append(reasons, "nav_like_short_word_ratio")
		}
	}

	if len(text) < 40 {
		score -= 1.5
		reasons = append(reasons, "too_short")
	}

	return Classification{IsInstructional: score >= 0.5, Score: score, Reasons: reasons}
}

// FilterInstructional splits sections into kept and dropped-with-classification.
func FilterInstructional(sections []distiller.Section) (kept []distiller.Section, dropped []DroppedSection) {
	for _, sec := range sections {
		cls := Classify(sec)
		if cls.IsInstructional {
			kept = append(kept, sec)
		} else {
			dropped = append(dropped, DroppedSection{Section: sec, Classification: cls})
		}
	}
	return kept, dropped
}

// DroppedSection pairs a filtered-out section with its classification for
// observability/debugging.
type DroppedSection struct {
	Section        distiller.Section
	Classification Classification
}
