package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	src := []byte("Intro\n\n# Highcharts *dist* builder\n\nRequest `/stable/highcharts.js`.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")

	page, err := Render(src)
	require.NoError(t, err)
	assert.Equal(t, "Highcharts dist builder", page.Title)
	assert.Contains(t, string(page.Body), "<code>/stable/highcharts.js</code>")
	assert.Contains(t, string(page.Body), "<table>")
}

func TestRender_NoHeading(t *testing.T) {
	page, err := Render([]byte("just text\n"))
	require.NoError(t, err)
	assert.Empty(t, page.Title)
	assert.Equal(t, "<p>just text</p>\n", string(page.Body))
}

func TestDocument(t *testing.T) {
	doc := string(Document(Page{Title: "A <b>", Body: []byte("<p>x</p>\n")}))
	assert.Contains(t, doc, "<title>A &lt;b&gt;</title>")
	assert.Contains(t, doc, "<body>\n<p>x</p>\n</body>")

	assert.Contains(t, string(Document(Page{})), "<title>distbuilder</title>")
}
