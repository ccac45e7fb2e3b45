package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Equal(t, []string{".html", ".htm", ".xhtml"}, n.SupportedExtensions())
	assert.Equal(t, 50, n.Priority())
}

func TestNormalise_Success(t *testing.T) {
	page := "<html><head><title>Test Page</title></head><body><p>Hello World</p></body></html>"

	res, err := New().Normalise(context.Background(), "/path/to/document.html", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Test Page", res.Title)
	assert.Equal(t, "Hello World", res.Content)
}

func TestNormalise_TitleFallback(t *testing.T) {
	res, err := New().Normalise(context.Background(), "/site/about-us.html", []byte("<p>x</p>"))
	require.NoError(t, err)
	assert.Equal(t, "about us", res.Title)
}

func TestNormalise_Nil(t *testing.T) {
	_, err := New().Normalise(context.Background(), "x.html", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scripts and styles", "<script>var x;</script><style>p{}</style><p>text</p>", "text"},
		{"comments", "<!-- hidden --><div>shown</div>", "shown"},
		{"entities", "<p>salt &amp; pepper &lt;3</p>", "salt & pepper <3"},
		{"blocks become lines", "<h1>Title</h1><p>One</p><p>Two</p>", "Title\nOne\nTwo"},
		{"br", "a<br/>b", "a\nb"},
		{"spaces collapse", "<p>a    b\t\tc</p>", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}

func TestExtractHTMLTitle_Entities(t *testing.T) {
	assert.Equal(t, "Bread & Butter", extractHTMLTitle("<title> Bread &amp; Butter </title>", "x.html"))
}
