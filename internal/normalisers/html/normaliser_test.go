package html

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".html", ".htm", ".xhtml"}, New().Extensions())
}

func TestNormalise_TitleAndBody(t *testing.T) {
	page := "<html><head><title>Test &amp; Page</title></head><body><p>Hello World</p></body></html>"

	text, err := New().Normalise("doc.html", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Test & Page\n\nHello World", text)
}

func TestNormalise_NoTitle(t *testing.T) {
	text, err := New().Normalise("doc.html", []byte("<div>Only body</div>"))
	require.NoError(t, err)
	assert.Equal(t, "Only body", text)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "scripts and styles removed",
			input: "<script>var x = 1;</script><style>p {}</style><p>kept</p>",
			want:  "kept",
		},
		{
			name:  "comments removed",
			input: "before<!-- hidden -->after",
			want:  "beforeafter",
		},
		{
			name:  "blocks become lines",
			input: "<h1>Title</h1><p>One</p><p>Two</p>",
			want:  "Title\nOne\nTwo",
		},
		{
			name:  "line breaks",
			input: "a<br>b<br/>c<hr />d",
			want:  "a\nb\nc\nd",
		},
		{
			name:  "entities decoded",
			input: "<p>&lt;tag&gt; &quot;q&quot;</p>",
			want:  `<tag> "q"`,
		},
		{
			name:  "spaces collapsed",
			input: "<p>a    b\t\tc</p>",
			want:  "a b c",
		},
		{
			name:  "list items and templates",
			input: "<ul><li>one</li><li>two</li></ul><template><p>hidden</p></template>",
			want:  "one\ntwo",
		},
		{
			name:  "non-breaking spaces collapse",
			input: "<p>a&nbsp;&nbsp;b</p>",
			want:  "a b",
		},
		{
			name:  "inline tags stripped",
			input: "<p>some <b>bold</b> and <a href=\"x\">link</a></p>",
			want:  "some bold and link",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.input))
		})
	}
}
