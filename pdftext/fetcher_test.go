package pdftext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-trawl/config"
)

func TestFindPDFLink(t *testing.T) {
	html := []byte(`<html><body><a href="/files/article.pdf?download=1">PDF</a></body></html>`)
	link, err := findPDFLink("https://example.org/record/42", html)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/files/article.pdf?download=1", link)
}

func TestFindPDFLinkAbsolute(t *testing.T) {
	html := []byte(`<a HREF="https://cdn.example.org/a.PDF">hier</a>`)
	link, err := findPDFLink("https://example.org/page", html)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/a.PDF", link)
}

func TestFindPDFLinkNone(t *testing.T) {
	link, err := findPDFLink("https://example.org/page", []byte(`<a href="/about.html">x</a>`))
	require.NoError(t, err)
	assert.Empty(t, link)
}

func TestFetchByURLRejectsNonPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>kein pdf</html>"))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{}, zap.NewNop(), nil)
	_, err := f.FetchByURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keine PDF")
}

func TestFetchByURLBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{}, zap.NewNop(), nil)
	_, err := f.FetchByURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchByLandingPageNoLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><a href="/impressum">Impressum</a></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{}, zap.NewNop(), nil)
	_, err := f.FetchByLandingPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kein PDF-Link")
}

func TestFetchByLandingPageSendsBrowserUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{}, zap.NewNop(), nil)
	_, _ = f.FetchByLandingPage(context.Background(), srv.URL)
	assert.Contains(t, ua, "Mozilla/5.0")
}

func TestMirrorKey(t *testing.T) {
	assert.Equal(t, "article.pdf", mirrorKey("https://example.org/files/article.pdf?download=1"))
	assert.Equal(t, "paper-1.pdf", mirrorKey("https://example.org/paper%201.pdf"))

	// Ohne brauchbaren Dateinamen kommt ein Hash-Schlüssel zurück.
	key := mirrorKey("https://example.org/")
	assert.Regexp(t, `^[0-9a-f]{40}\.pdf$`, key)
}
