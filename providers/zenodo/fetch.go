package zenodo

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trawl/config"
	"paper-trawl/models"
	"paper-trawl/providers"
)

var (
	httpClient = &http.Client{Timeout: 60 * time.Second}
	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// PortalName ist die Portal-Beschreibung für diese Quelle.
const PortalName = "Zenodo"

// Fetcher kapselt die Logik zur Interaktion mit Zenodo.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Portals providers.PortalResolver
	PDF     providers.PDFFetcher
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des Zenodo-Fetchers. portals und
// pdfFetcher dürfen nil sein, dann bleiben Portale unpersistiert bzw. werden
// keine Volltexte geladen.
func NewFetcher(cfg *config.Config, logger *zap.Logger, portals providers.PortalResolver, pdfFetcher providers.PDFFetcher) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Portals: portals,
		PDF:     pdfFetcher,
		limiter: providers.NewLimiter(cfg.ZenodoDelay),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "zenodo"
}

// Search blättert durch die Records-Suche, bis eine Seite leer oder kurz ist
// oder das Limit erreicht wird. MinYear wird clientseitig angewendet. Bei
// Abbruch oder Seitenfehlern mitten im Lauf kommt die bis dahin gesammelte
// Teilmenge zurück.
func (f *Fetcher) Search(ctx context.Context, req providers.Request) ([]*models.Publication, error) {
	log := f.Logger.With(zap.String("term", req.Query))

	max := req.MaxRecords
	if max <= 0 {
		max = f.Config.MaxRecords
	}
	pageSize := f.Config.ZenodoPageSize
	portal := providers.ResolvePortal(f.Portals, PortalName)

	var pubs []*models.Publication
	for page := 1; len(pubs) < max; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			log.Warn("Zenodo-Suche abgebrochen, liefere Teilergebnis", zap.Int("count", len(pubs)))
			return pubs, nil
		}

		hits, err := f.fetchPage(ctx, req.Query, page, pageSize)
		if err != nil {
			if len(pubs) == 0 {
				return nil, fmt.Errorf("zenodo-suche: %w", err)
			}
			log.Error("Zenodo-Seite fehlgeschlagen, liefere Teilergebnis", zap.Int("count", len(pubs)), zap.Error(err))
			return pubs, nil
		}
		if len(hits) == 0 {
			break
		}

		for i := range hits {
			pub := f.mapHit(&hits[i])
			pub.Portal = portal
			if req.MinYear > 0 && pub.PublicationYear != nil && *pub.PublicationYear < req.MinYear {
				continue
			}
			if req.FetchPDF && f.PDF != nil && pub.PdfUrl != "" {
				f.attachPDF(ctx, pub)
			}
			pubs = append(pubs, pub)
		}

		if len(hits) < pageSize {
			break
		}
	}

	if len(pubs) > max {
		pubs = pubs[:max]
	}
	log.Info("Zenodo-Suche abgeschlossen", zap.Int("count", len(pubs)))
	return pubs, nil
}

// fetchPage holt eine einzelne Trefferseite.
func (f *Fetcher) fetchPage(ctx context.Context, query string, page, pageSize int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("size", fmt.Sprintf("%d", pageSize))
	if f.Config.ZenodoToken != "" {
		params.Set("access_token", f.Config.ZenodoToken)
	}

	reqURL := fmt.Sprintf("%s/records?%s", f.Config.ZenodoBaseURL, params.Encode())
	f.Logger.Debug("Rufe Zenodo-Records ab", zap.Int("page", page))

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
		return nil, fmt.Errorf("zenodo liefert status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("antwort parsen: %w", err)
	}
	return sr.Hits.Hits, nil
}

// mapHit wandelt einen Treffer in unser Publication-Modell um.
func (f *Fetcher) mapHit(h *Hit) *models.Publication {
	m := &h.Metadata

	doi := h.DOI
	if doi == "" {
		doi = m.DOI
	}

	pub := &models.Publication{
		Title:    strings.TrimSpace(m.Title),
		Abstract: stripHTML(m.Description),
		DOI:      providers.DOIPtr(doi),
		ISSN:     providers.NormalizeISSN(m.Journal.ISSN),
		Pages:    strings.TrimSpace(m.Journal.Pages),
	}

	seen := make(map[string]struct{})
	for _, c := range m.Creators {
		pub.Authors = providers.AppendAuthor(pub.Authors, seen, c.Name)
	}

	pub.PublicationYear, pub.PublicationMonth, pub.PublicationDay = providers.SplitDate(m.PublicationDate)
	pub.PdfUrl = pickPDF(h.Files)

	return pub
}

// attachPDF lädt den Volltext zum bekannten Datei-Link. Fehler brechen die
// Suche nicht ab.
func (f *Fetcher) attachPDF(ctx context.Context, pub *models.Publication) {
	doc, err := f.PDF.FetchByURL(ctx, pub.PdfUrl)
	if err != nil {
		f.Logger.Warn("Zenodo-Volltext nicht ladbar", zap.String("url", pub.PdfUrl), zap.Error(err))
		return
	}
	pub.PdfText = doc.Text
	if pub.Pages == "" && doc.Pages > 0 {
		pub.Pages = strconv.Itoa(doc.Pages)
	}
}

// pickPDF wählt den Datei-Anhang für den Volltext: bevorzugt "article.pdf",
// sonst die erste PDF-Datei.
func pickPDF(files []File) string {
	var first string
	for _, file := range files {
		key := strings.ToLower(file.Key)
		if !strings.HasSuffix(key, ".pdf") || file.Links.Self == "" {
			continue
		}
		if key == "article.pdf" {
			return file.Links.Self
		}
		if first == "" {
			first = file.Links.Self
		}
	}
	return first
}

// stripHTML entfernt Markup aus der Beschreibung; Zenodo liefert dort HTML.
func stripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
