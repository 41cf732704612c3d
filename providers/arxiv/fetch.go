package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trawl/config"
	"paper-trawl/models"
	"paper-trawl/providers"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// PortalName ist die Portal-Beschreibung für diese Quelle.
const PortalName = "ArXiv"

// Fetcher kapselt die Logik zur Interaktion mit ArXiv.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Portals providers.PortalResolver
	PDF     providers.PDFFetcher
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des ArXiv-Fetchers. portals und
// pdfFetcher dürfen nil sein, dann bleiben Portale unpersistiert bzw. werden
// keine Volltexte geladen.
func NewFetcher(cfg *config.Config, logger *zap.Logger, portals providers.PortalResolver, pdfFetcher providers.PDFFetcher) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Portals: portals,
		PDF:     pdfFetcher,
		limiter: providers.NewLimiter(cfg.ArxivDelay),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "arxiv"
}

// Search blättert durch den Atom-Feed, bis eine Seite leer oder kurz ist
// oder das Limit erreicht wird. Die API kennt keinen Jahresfilter, deshalb
// wird MinYear clientseitig angewendet. Bei Abbruch oder Seitenfehlern
// mitten im Lauf kommt die bis dahin gesammelte Teilmenge zurück.
func (f *Fetcher) Search(ctx context.Context, req providers.Request) ([]*models.Publication, error) {
	log := f.Logger.With(zap.String("term", req.Query))

	max := req.MaxRecords
	if max <= 0 {
		max = f.Config.MaxRecords
	}
	pageSize := f.Config.ArxivPageSize
	portal := providers.ResolvePortal(f.Portals, PortalName)

	var pubs []*models.Publication
	for start := 0; len(pubs) < max; start += pageSize {
		if err := f.limiter.Wait(ctx); err != nil {
			log.Warn("ArXiv-Suche abgebrochen, liefere Teilergebnis", zap.Int("count", len(pubs)))
			return pubs, nil
		}

		feed, err := f.fetchPage(ctx, req.Query, start, pageSize)
		if err != nil {
			if len(pubs) == 0 {
				return nil, fmt.Errorf("arxiv-suche: %w", err)
			}
			log.Error("ArXiv-Seite fehlgeschlagen, liefere Teilergebnis", zap.Int("count", len(pubs)), zap.Error(err))
			return pubs, nil
		}
		if len(feed.Entries) == 0 {
			break
		}

		for i := range feed.Entries {
			pub := f.mapEntry(&feed.Entries[i])
			pub.Portal = portal
			if req.MinYear > 0 && pub.PublicationYear != nil && *pub.PublicationYear < req.MinYear {
				continue
			}
			if req.FetchPDF && f.PDF != nil && pub.PdfUrl != "" {
				f.attachPDF(ctx, pub)
			}
			pubs = append(pubs, pub)
		}

		if len(feed.Entries) < pageSize {
			break
		}
	}

	if len(pubs) > max {
		pubs = pubs[:max]
	}
	log.Info("ArXiv-Suche abgeschlossen", zap.Int("count", len(pubs)))
	return pubs, nil
}

// fetchPage holt eine einzelne Feed-Seite.
func (f *Fetcher) fetchPage(ctx context.Context, query string, start, pageSize int) (*Feed, error) {
	params := url.Values{}
	params.Set("search_query", fmt.Sprintf("all:%s", query))
	params.Set("start", fmt.Sprintf("%d", start))
	params.Set("max_results", fmt.Sprintf("%d", pageSize))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	reqURL := fmt.Sprintf("%s?%s", f.Config.ArxivBaseURL, params.Encode())
	f.Logger.Debug("Rufe ArXiv-Feed ab", zap.String("url", reqURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("arxiv liefert status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("feed parsen: %w", err)
	}
	return &feed, nil
}

// mapEntry wandelt einen Feed-Eintrag in unser Publication-Modell um.
func (f *Fetcher) mapEntry(e *Entry) *models.Publication {
	pub := &models.Publication{
		// ArXiv-Titel enthalten oft Zeilenumbrüche mit Einrückung.
		Title:    strings.Join(strings.Fields(e.Title), " "),
		Abstract: strings.TrimSpace(e.Summary),
		DOI:      providers.DOIPtr(e.DOI),
	}

	seen := make(map[string]struct{})
	for _, a := range e.Authors {
		pub.Authors = providers.AppendAuthor(pub.Authors, seen, a.Name)
	}

	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		y, m, d := t.Year(), int(t.Month()), t.Day()
		pub.PublicationYear = &y
		pub.PublicationMonth = &m
		pub.PublicationDay = &d
	}

	for _, link := range e.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pub.PdfUrl = link.Href
			break
		}
	}
	if pub.PdfUrl == "" {
		if id := extractArxivID(e.ID); id != "" {
			pub.PdfUrl = fmt.Sprintf("https://arxiv.org/pdf/%s", id)
		}
	}

	return pub
}

// attachPDF lädt den Volltext zum bekannten PDF-Link. Fehler brechen die
// Suche nicht ab.
func (f *Fetcher) attachPDF(ctx context.Context, pub *models.Publication) {
	doc, err := f.PDF.FetchByURL(ctx, pub.PdfUrl)
	if err != nil {
		f.Logger.Warn("ArXiv-Volltext nicht ladbar", zap.String("url", pub.PdfUrl), zap.Error(err))
		return
	}
	pub.PdfText = doc.Text
	if pub.Pages == "" && doc.Pages > 0 {
		pub.Pages = strconv.Itoa(doc.Pages)
	}
}

// extractArxivID holt die nackte ArXiv-ID aus der Eintrags-URL,
// z.B. "http://arxiv.org/abs/2301.00001v2" -> "2301.00001".
func extractArxivID(fullURL string) string {
	parts := strings.Split(fullURL, "/abs/")
	if len(parts) != 2 {
		return ""
	}
	id := parts[1]
	if idx := strings.LastIndex(id, "v"); idx > 0 {
		isVersion := len(id[idx+1:]) > 0
		for _, c := range id[idx+1:] {
			if c < '0' || c > '9' {
				isVersion = false
				break
			}
		}
		if isVersion {
			id = id[:idx]
		}
	}
	return id
}
