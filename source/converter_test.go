package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releasePage = `<!DOCTYPE html>
<html>
<head><title>Release notes | Example</title><style>body{}</style></head>
<body>
<nav><a href="/">Home</a><a href="/docs">Docs</a></nav>
<main>
  <h1>v2.4.0</h1>
  <p>Adds <strong>streaming</strong> responses.</p>
  <div class="sidebar">Related posts</div>
  <ul><li>Faster startup</li><li>Fixed a crash</li></ul>
  <div id="changelog"><h2>Changelog</h2><p>Full list.</p></div>
</main>
<footer>Copyright</footer>
</body>
</html>`

func TestConverter_MainContent(t *testing.T) {
	doc, err := NewConverter().Convert(releasePage, "")
	require.NoError(t, err)

	assert.Equal(t, "Release notes | Example", doc.Title)
	assert.Contains(t, doc.Markdown, "# v2.4.0")
	assert.Contains(t, doc.Markdown, "**streaming**")
	assert.Contains(t, doc.Markdown, "Faster startup")
	assert.NotContains(t, doc.Markdown, "Related posts")
	assert.NotContains(t, doc.Markdown, "Home")
	assert.NotContains(t, doc.Markdown, "Copyright")
}

func TestConverter_Selector(t *testing.T) {
	doc, err := NewConverter().Convert(releasePage, "#changelog")
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "Full list.")
	assert.NotContains(t, doc.Markdown, "streaming")

	_, err = NewConverter().Convert(releasePage, "#nope")
	assert.Error(t, err)
}

func TestConverter_TitleFromHeading(t *testing.T) {
	doc, err := NewConverter().Convert(`<body><article><h1>Only heading</h1><p>x</p></article></body>`, "")
	require.NoError(t, err)
	assert.Equal(t, "Only heading", doc.Title)
}

func TestConverter_PageText(t *testing.T) {
	c := NewConverter()

	text, err := c.PageText(&Page{Body: "  # Changelog\n\n- fix  ", ContentType: "text/markdown"}, "")
	require.NoError(t, err)
	assert.Equal(t, "# Changelog\n\n- fix", text)

	text, err = c.PageText(&Page{Body: releasePage, ContentType: "text/html"}, "")
	require.NoError(t, err)
	assert.Contains(t, text, "v2.4.0")
}

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses blank runs", "a\n\n\n\n\n\nb", "a\n\n\nb"},
		{"trims trailing spaces", "a   \nb\t", "a\nb"},
		{"trims document", "\n\n a\n\n", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdown(tt.in))
		})
	}
}
