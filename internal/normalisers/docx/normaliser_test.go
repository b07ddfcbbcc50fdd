package docx

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// createTestDOCX creates a minimal valid DOCX file in memory.
func createTestDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	contentTypes, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = contentTypes.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))
	require.NoError(t, err)

	if documentXML != "" {
		doc, err := w.Create("word/document.xml")
		require.NoError(t, err)
		_, err = doc.Write([]byte(documentXML))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".docx"}, New().Extensions())
}

func TestNormalise_Paragraphs(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>World</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body>
</w:document>`

	text, err := New().Normalise("report.docx", createTestDOCX(t, docXML))
	require.NoError(t, err)
	assert.Equal(t, "Hello World\nSecond paragraph", text)
}

func TestNormalise_NoBody(t *testing.T) {
	text, err := New().Normalise("empty.docx", createTestDOCX(t, ""))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNormalise_NotAZip(t *testing.T) {
	_, err := New().Normalise("fake.docx", []byte("plain text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChunking)
	assert.Contains(t, err.Error(), "fake.docx")
}

func TestNormalise_MalformedXML(t *testing.T) {
	_, err := New().Normalise("bad.docx", createTestDOCX(t, "<w:document><w:body>"))
	assert.ErrorIs(t, err, domain.ErrChunking)
}
