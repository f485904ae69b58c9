// Package cleaner normalizes raw HTML into plain text for downstream
// distillation stages.
package cleaner

import (
	"html"
	"os"
	"regexp"
	"strings"
)

var (
	reScript          = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle           = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags            = regexp.MustCompile(`<[^>]+>`)
	// Go's \s is ASCII-only, unlike Python's Unicode-aware \s; fold in
	// \x{00a0} (NBSP) and \p{Z} so entities like &nbsp; collapse the same
	// way they do in the original cleaner.
	reWhitespace      = regexp.MustCompile(`[\s\x{00a0}\p{Z}]+`)
	reSpaceBeforePunc = regexp.MustCompile(`[\s\x{00a0}\p{Z}]+([.,!?:;])`)
)

// CleanHTMLText strips scripts, styles and tags from rawHTML, unescapes
// entities, and collapses whitespace into normalized plain text.
func CleanHTMLText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	t := rawHTML
	t = reScript.ReplaceAllString(t, " ")
	t = reStyle.ReplaceAllString(t, " ")
	t = reTags.ReplaceAllString(t, " ")
	t = html.UnescapeString(t)
	t = reWhitespace.ReplaceAllString(t, " ")
	t = reSpaceBeforePunc.ReplaceAllString(t, "$1")
	return strings.TrimSpace(t)
}

// CleanHTMLFile reads path and returns its cleaned plain text.
func CleanHTMLFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return CleanHTMLText(string(raw)), nil
}
