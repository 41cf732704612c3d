package pdftext

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"paper-trawl/config"
	"paper-trawl/providers"
	"paper-trawl/storage"
)

// CustomTransport fügt jeder Anfrage einen Browser-User-Agent hinzu, da
// einige Verlagsseiten Anfragen ohne diesen ablehnen.
type CustomTransport struct {
	Transport http.RoundTripper
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	return t.Transport.RoundTrip(req)
}

// httpClient wird für alle Downloads in diesem Paket verwendet.
var httpClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &CustomTransport{
		Transport: http.DefaultTransport,
	},
}

var pdfHrefPattern = regexp.MustCompile(`(?i)href="([^"]+\.pdf[^"]*)"`)

// maxLandingPageBytes begrenzt, wie viel HTML einer Artikelseite gelesen wird.
const maxLandingPageBytes = 2 << 20

// Fetcher lädt PDF-Volltexte herunter, extrahiert den Text und spiegelt die
// Datei optional nach S3.
type Fetcher struct {
	Config   *config.Config
	Logger   *zap.Logger
	S3Client *s3.Client
}

// NewFetcher erstellt einen neuen PDF-Fetcher. s3Client darf nil sein, dann
// wird nicht gespiegelt.
func NewFetcher(cfg *config.Config, logger *zap.Logger, s3Client *s3.Client) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, S3Client: s3Client}
}

var _ providers.PDFFetcher = (*Fetcher)(nil)

// FetchByURL lädt das PDF unter der gegebenen Adresse und extrahiert den Text.
func (f *Fetcher) FetchByURL(ctx context.Context, rawURL string) (*providers.PDFDocument, error) {
	log := f.Logger.With(zap.String("url", rawURL))

	data, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("antwort von %s ist keine PDF-Datei", rawURL)
	}

	pageTexts, pages, err := extractPages(data)
	if err != nil {
		return nil, fmt.Errorf("pdf-text extrahieren: %w", err)
	}
	text, stats := NormalizePages(pageTexts)
	log.Debug("PDF-Text extrahiert",
		zap.Int("pages", pages),
		zap.Int("bytes", len(data)),
		zap.Int("hyphen_fixes", stats.HyphenFixes),
		zap.Int("headers_removed", stats.HeadersRemoved),
		zap.Int("footers_removed", stats.FootersRemoved))

	if f.S3Client != nil && f.Config.MirrorPDFs() {
		f.mirror(ctx, rawURL, data)
	}

	return &providers.PDFDocument{URL: rawURL, Text: text, Pages: pages}, nil
}

// FetchByLandingPage sucht auf einer Artikelseite nach dem ersten PDF-Link
// und lädt dann wie FetchByURL.
func (f *Fetcher) FetchByLandingPage(ctx context.Context, pageURL string) (*providers.PDFDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artikelseite %s liefert status %d", pageURL, resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, maxLandingPageBytes))
	if err != nil {
		return nil, err
	}

	link, err := findPDFLink(pageURL, html)
	if err != nil {
		return nil, err
	}
	if link == "" {
		return nil, fmt.Errorf("kein PDF-Link auf %s gefunden", pageURL)
	}

	f.Logger.Debug("PDF-Link auf Artikelseite gefunden", zap.String("page", pageURL), zap.String("link", link))
	return f.FetchByURL(ctx, link)
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s liefert status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// mirror legt die PDF-Datei zusätzlich im S3-Bucket ab. Fehler brechen den
// Abruf nicht ab, der extrahierte Text ist wichtiger als die Kopie.
func (f *Fetcher) mirror(ctx context.Context, rawURL string, data []byte) {
	key := mirrorKey(rawURL)
	s3link, err := storage.UploadFile(ctx, f.S3Client, f.Config.S3Bucket, key, data, f.Config)
	if err != nil {
		f.Logger.Warn("S3-Spiegelung fehlgeschlagen", zap.String("key", key), zap.Error(err))
		return
	}
	f.Logger.Info("PDF nach S3 gespiegelt", zap.String("s3_link", s3link))
}

// mirrorKey leitet den S3-Schlüssel aus der URL ab; unbrauchbare Dateinamen
// fallen auf einen Hash der URL zurück.
func mirrorKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		base := path.Base(u.Path)
		base = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			case r == '.', r == '-', r == '_':
				return r
			}
			return '-'
		}, base)
		if base != "" && base != "." && base != "/" && base != "-" {
			if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
				base += ".pdf"
			}
			return base
		}
	}
	return fmt.Sprintf("%x.pdf", sha1.Sum([]byte(rawURL)))
}

// findPDFLink sucht den ersten PDF-Verweis im HTML und löst relative Pfade
// gegen die Seitenadresse auf.
func findPDFLink(pageURL string, html []byte) (string, error) {
	m := pdfHrefPattern.FindSubmatch(html)
	if m == nil {
		return "", nil
	}
	href := string(m[1])

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// extractPages liest den Text jeder Seite einer PDF-Datei und liefert
// zusätzlich die Seitenzahl. Seiten, deren Inhalt sich nicht lesen lässt,
// werden übersprungen.
func extractPages(data []byte) ([]string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, reader.NumPage(), nil
}
