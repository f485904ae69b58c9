// Package distiller heuristically extracts DistilledSection candidates from
// raw HTML without a general HTML parser: container blocks (nav/footer/
// header/aside) are masked in place so their character offsets stay stable,
// then heading-driven block elements are grouped into sections.
package distiller

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tas-ingestion/ingestion/internal/cleaner"
	"github.com/tas-ingestion/ingestion/internal/idutil"
)

var containerTags = []string{"nav", "footer", "header", "aside"}

// blockTags lists the element names treated as section-building blocks, in
// the same order the original scans them. Go's RE2 engine has no
// backreferences, so each tag gets its own open/close pattern instead of one
// alternation-with-backreference regex.
var blockTags = []string{"h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "pre", "code", "blockquote"}

func blockRegexFor(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<\s*` + tag + `\b[^>]*>([\s\S]*?)<\s*/\s*` + tag + `\s*>`)
}

// Evidence is a provenance pointer into the raw HTML input.
type Evidence struct {
	SourceHash string `json:"source_hash"`
	Offset     [2]int `json:"offset"`
}

// Section is a DistilledSection candidate.
type Section struct {
	SectionID string     `json:"section_id"`
	Domain    string     `json:"domain"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title,omitempty"`
	CleanText string     `json:"clean_text"`
	Evidence  []Evidence `json:"evidence"`
}

type block struct {
	tag   string
	start int
	end   int
	text  string
}

// containerRanges returns rune offsets, not byte offsets: regexp.FindAllStringIndex
// reports byte positions, but maskRanges indexes a []rune(rawHTML), so every match
// is converted here to keep both sides in the same index space.
func containerRanges(rawHTML string) [][2]int {
	var ranges [][2]int
	for _, tag := range containerTags {
		re := regexp.MustCompile(`(?is)<\s*` + tag + `[^>]*>[\s\S]*?<\s*/\s*` + tag + `\s*>`)
		for _, m := range re.FindAllStringIndex(rawHTML, -1) {
			start := utf8.RuneCountInString(rawHTML[:m[0]])
			end := start + utf8.RuneCountInString(rawHTML[m[0]:m[1]])
			ranges = append(ranges, [2]int{start, end})
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	merged := [][2]int{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1] {
			if r[1] > last[1] {
				last[1] = r[1]
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

func maskRanges(rawHTML string, ranges [][2]int) string {
	if len(ranges) == 0 {
		return rawHTML
	}
	chars := []rune(rawHTML)
	for _, r := range ranges {
		start, end := r[0], r[1]
		if start < 0 {
			start = 0
		}
		if end > len(chars) {
			end = len(chars)
		}
		for i := start; i < end; i++ {
			if chars[i] != '\n' {
				chars[i] = ' '
			}
		}
	}
	return string(chars)
}

var boilerplate = map[string]bool{
	"home":            true,
	"docs":            true,
	"edit this page":  true,
	"last updated":    true,
}

func isBoilerplate(cleanText string) bool {
	s := strings.ToLower(strings.TrimSpace(cleanText))
	if s == "" {
		return true
	}
	if boilerplate[s] {
		return true
	}
	return len(s) < 3
}

func guessKind(title, text string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	switch {
	case strings.Contains(t, "example"):
		return "example"
	case strings.HasPrefix(t, "how to"), strings.Contains(t, "how-to"), strings.Contains(t, "howto"):
		return "howto"
	case strings.HasPrefix(t, "note"), strings.HasPrefix(t, "warning"), strings.HasPrefix(t, "caution"):
		return "note"
	case strings.Contains(t, "definition"):
		return "definition"
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "example:") {
		return "example"
	}
	return "explanation"
}

// ExtractBlocks finds candidate block elements in rawHTML with container
// regions masked out, filters boilerplate, and dedupes by cleaned text.
func ExtractBlocks(rawHTML string) []block {
	if rawHTML == "" {
		return nil
	}
	masked := maskRanges(rawHTML, containerRanges(rawHTML))
	var blocks []block
	for _, tag := range blockTags {
		re := blockRegexFor(tag)
		for _, m := range re.FindAllStringSubmatchIndex(masked, -1) {
			inner := masked[m[2]:m[3]]
			clean := cleaner.CleanHTMLText(inner)
			if isBoilerplate(clean) {
				continue
			}
			start := utf8.RuneCountInString(masked[:m[0]])
			end := start + utf8.RuneCountInString(masked[m[0]:m[1]])
			blocks = append(blocks, block{tag: tag, start: start, end: end, text: clean})
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].start < blocks[j].start })
	seen := map[string]bool{}
	var deduped []block
	for _, b := range blocks {
		if seen[b.text] {
			continue
		}
		seen[b.text] = true
		deduped = append(deduped, b)
	}
	return deduped
}

// DistillSectionsFromHTML groups extracted blocks into sections, splitting on
// heading blocks. Returns at least one section if rawHTML contains any
// non-boilerplate blocks at all.
func DistillSectionsFromHTML(rawHTML, domain, sourceHash string) []Section {
	blocks := ExtractBlocks(rawHTML)

	var sections []Section
	var currentTitle string
	var hasTitle bool
	var evidence []Evidence
	var parts []string

	flush := func() {
		defer func() {
			currentTitle = ""
			hasTitle = false
			evidence = nil
			parts = nil
		}()
		if len(parts) == 0 {
			return
		}
		cleanText := strings.TrimSpace(strings.Join(parts, "\n\n"))
		if cleanText == "" {
			return
		}
		title := ""
		if hasTitle {
			title = currentTitle
		}
		kind := guessKind(title, cleanText)
		sec := Section{
			SectionID: idutil.SectionID(domain, sourceHash, kind, title, cleanText),
			Domain:    domain,
			Kind:      kind,
			CleanText: cleanText,
			Evidence:  append([]Evidence(nil), evidence...),
		}
		if hasTitle {
			sec.Title = title
		}
		sections = append(sections, sec)
	}

	for _, b := range blocks {
		if strings.HasPrefix(b.tag, "h") {
			flush()
			currentTitle = b.text
			hasTitle = true
			evidence = append(evidence, Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}})
			continue
		}
		parts = append(parts, b.text)
		evidence = append(evidence, Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}})
	}
	flush()

	if len(sections) == 0 && len(blocks) > 0 {
		texts := make([]string, len(blocks))
		ev := make([]Evidence, len(blocks))
		for i, b := range blocks {
			texts[i] = b.text
			ev[i] = Evidence{SourceHash: sourceHash, Offset: [2]int{b.start, b.end}}
		}
		cleanText := strings.TrimSpace(strings.Join(texts, "\n\n"))
		kind := guessKind("", cleanText)
		sections = []Section{{
			SectionID: idutil.SectionID(domain, sourceHash, kind, "", cleanText),
			Domain:    domain,
			Kind:      kind,
			CleanText: cleanText,
			Evidence:  ev,
		}}
	}
	return sections
}
