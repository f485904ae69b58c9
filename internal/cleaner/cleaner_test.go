package cleaner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTMLText(t *testing.T) {
	raw := `<html><body><script>alert(1)</script><style>.a{color:red}</style>
	<h1>Title</h1><p>Hello &amp; welcome   to   Go .</p></body></html>`

	got := CleanHTMLText(raw)

	assert.NotContains(t, got, "alert(1)")
	assert.NotContains(t, got, "color:red")
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "Hello & welcome to Go.")
}

func TestCleanHTMLTextEmpty(t *testing.T) {
	assert.Equal(t, "", CleanHTMLText(""))
}

func TestCleanHTMLTextCollapsesNBSP(t *testing.T) {
	got := CleanHTMLText("<p>Hello&nbsp;<b>World</b> !</p>")
	assert.Equal(t, "Hello World!", got)
}

func TestCleanHTMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>hello  world</p>"), 0o644))

	got, err := CleanHTMLFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestCleanHTMLFileMissing(t *testing.T) {
	_, err := CleanHTMLFile(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
