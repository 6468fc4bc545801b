package extractor_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsassist/internal/extractor"
	"github.com/xxxsen/docsassist/internal/model"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractURLMainContent(t *testing.T) {
	page := `<html><head><title>Ignored</title><style>.x{color:red}</style></head>
<body>
<nav>Menu</nav>
<header>Site header</header>
<main>
<h1>Guide</h1>
<p>Install  the tool.</p>
<script>var a = 1;</script>
</main>
<footer>Footer text</footer>
</body></html>`
	srv := serve(t, http.StatusOK, page)
	ex := extractor.New(extractor.Config{})
	text, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeURL, URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "Guide Install the tool.", text)
}

func TestExtractURLFallbacks(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "article",
			page: `<body><div>outside</div><article><p>Inside article</p></article></body>`,
			want: "Inside article",
		},
		{
			name: "content div",
			page: `<body><div class="sidebar">side</div><div class="page content"><p>Body text</p></div></body>`,
			want: "Body text",
		},
		{
			name: "whole document",
			page: "<body><p>first</p>\n<nav>skip</nav>\n<p>second</p></body>",
			want: "first second",
		},
	}
	ex := extractor.New(extractor.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, http.StatusOK, tt.page)
			text, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeURL, URL: srv.URL})
			require.NoError(t, err)
			require.Equal(t, tt.want, text)
		})
	}
}

func TestExtractURLSendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()
	ex := extractor.New(extractor.Config{UserAgent: "docs-bot/1.0"})
	_, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeURL, URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "docs-bot/1.0", got)
}

func TestExtractURLNotFound(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "missing")
	ex := extractor.New(extractor.Config{})
	_, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeURL, URL: srv.URL})
	require.Error(t, err)

	var extErr *extractor.ExtractionError
	require.True(t, errors.As(err, &extErr))
	require.Equal(t, "url", extErr.Kind)

	var fetchErr *extractor.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.True(t, strings.HasPrefix(err.Error(), "Error processing url: "))
}

func TestExtractURLUnreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()
	ex := extractor.New(extractor.Config{})
	_, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeURL, URL: url})
	var fetchErr *extractor.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Error(t, fetchErr.Err)
}

func TestExtractPlainTextFiles(t *testing.T) {
	for _, name := range []string{"notes.txt", "main.go", "CONFIG.YAML", "script.sh"} {
		text, err := extractor.ExtractFile(name, []byte("hello\nworld"))
		require.NoError(t, err, name)
		require.Equal(t, "hello\nworld", text)
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	_, err := extractor.ExtractFile("notes.txt", []byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
}

func TestExtractMarkdown(t *testing.T) {
	src := "# Title\n\nSome *text* here.\n\n```go\nfmt.Println(1)\n```\n"
	text, err := extractor.ExtractFile("README.md", []byte(src))
	require.NoError(t, err)
	require.Contains(t, text, "Title")
	require.Contains(t, text, "Some text here.")
	require.Contains(t, text, "fmt.Println(1)")
	require.NotContains(t, text, "<")
	require.NotContains(t, text, "*")
}

func TestExtractDocx(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>`)
	text, err := extractor.ExtractFile("manual.docx", data)
	require.NoError(t, err)
	require.Equal(t, "First paragraph\nSecond paragraph", text)
}

func TestExtractDocxSkipsTablesAndTextBoxes(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Intro</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell text</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`<w:p><w:r><w:t>Body</w:t></w:r><w:r><w:pict><w:txbxContent><w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></w:pict></w:r>`+
			`<w:r><w:tab/><w:t>end</w:t></w:r></w:p>`)
	text, err := extractor.ExtractFile("layout.docx", data)
	require.NoError(t, err)
	require.Equal(t, "Intro\nBody\tend", text)
}

func TestExtractDocxWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = extractor.ExtractFile("broken.docx", buf.Bytes())
	require.Error(t, err)
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := extractor.ExtractFile("paper.pdf", []byte("definitely not a pdf"))
	require.Error(t, err)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestExtractPDFPagesInOrder(t *testing.T) {
	text, err := extractor.ExtractFile("guide.pdf", readFixture(t, "two_pages.pdf"))
	require.NoError(t, err)
	require.Equal(t, "\nInstall the agent\n\nConfigure the agent\n", text)
	require.Less(t, strings.Index(text, "Install"), strings.Index(text, "Configure"))
}

func TestExtractPDFMissingPageKeepsNewline(t *testing.T) {
	// the page tree announces three pages but only holds two
	text, err := extractor.ExtractFile("short.pdf", readFixture(t, "short_page_tree.pdf"))
	require.NoError(t, err)
	require.Equal(t, "\nOnly page one\n\nOnly page two\n\n", text)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	ex := extractor.New(extractor.Config{})
	_, err := ex.Extract(context.Background(), extractor.Source{
		Kind:     model.SourceTypeFile,
		FileName: "archive.xyz",
		Data:     []byte("data"),
	})
	var unsupported *extractor.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, ".xyz", unsupported.Ext)
	require.Equal(t, "Error processing file: Unsupported file format: .xyz", err.Error())
	require.False(t, extractor.SupportedExt("archive.xyz"))
	require.True(t, extractor.SupportedExt("Guide.PDF"))
	require.Equal(t, ".pdf", extractor.FileExt("Guide.PDF"))
	require.Equal(t, "", extractor.FileExt("Makefile"))
}

func TestExtractTextPassthrough(t *testing.T) {
	ex := extractor.New(extractor.Config{})
	text, err := ex.Extract(context.Background(), extractor.Source{Kind: model.SourceTypeText, Text: "  raw text  "})
	require.NoError(t, err)
	require.Equal(t, "  raw text  ", text)
}
