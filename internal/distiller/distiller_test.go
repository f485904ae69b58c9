package distiller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `
<html><body>
<nav><a href="/">Home</a><a href="/docs">Docs</a></nav>
<header><h1>Site</h1></header>
<h1>Getting Started</h1>
<p>Run the installer to configure your environment.</p>
<p>Then use the CLI to create a new project.</p>
<h2>Example</h2>
<p>Example: run "make build" to compile the project.</p>
<footer><p>Copyright 2026</p></footer>
</body></html>`

func TestDistillSectionsFromHTML(t *testing.T) {
	sections := DistillSectionsFromHTML(sampleHTML, "docs", "hash123")
	require.NotEmpty(t, sections)

	var titles []string
	for _, s := range sections {
		titles = append(titles, s.Title)
		assert.Equal(t, "docs", s.Domain)
		assert.NotEmpty(t, s.SectionID)
		assert.NotEmpty(t, s.CleanText)
		for _, ev := range s.Evidence {
			assert.Equal(t, "hash123", ev.SourceHash)
		}
	}
	assert.Contains(t, titles, "Getting Started")
	assert.Contains(t, titles, "Example")
}

func TestDistillSectionsFromHTMLExcludesContainers(t *testing.T) {
	sections := DistillSectionsFromHTML(sampleHTML, "docs", "hash123")
	for _, s := range sections {
		assert.NotContains(t, s.CleanText, "Copyright 2026")
	}
}

func TestDistillSectionsFromHTMLEmpty(t *testing.T) {
	assert.Empty(t, DistillSectionsFromHTML("", "docs", "h"))
}

func TestExtractBlocksDedupes(t *testing.T) {
	html := `<p>Same text.</p><p>Same text.</p><p>Different text here is long enough.</p>`
	blocks := ExtractBlocks(html)
	assert.Len(t, blocks, 2)
}

func TestDistillSectionsFromHTMLSurvivesMultiByteBeforeContainer(t *testing.T) {
	html := `<p>café</p><nav>Home</nav><h1>Install</h1><p>Run init to configure the project.</p>`
	sections := DistillSectionsFromHTML(html, "docs", "hash123")
	require.NotEmpty(t, sections)

	var titles []string
	for _, s := range sections {
		titles = append(titles, s.Title)
		assert.NotContains(t, s.CleanText, "Home")
	}
	assert.Contains(t, titles, "Install")
}

func TestSectionIDDeterministic(t *testing.T) {
	a := DistillSectionsFromHTML(sampleHTML, "docs", "hash123")
	b := DistillSectionsFromHTML(sampleHTML, "docs", "hash123")
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].SectionID, b[i].SectionID)
	}
}
