package scopus

import (
	"context"
	"encoding/json"
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
const PortalName = "Scopus"

// Fetcher kapselt die Logik zur Interaktion mit Scopus. Such- und
// Detail-Aufrufe laufen über denselben Limiter, damit der geforderte
// Mindestabstand zwischen allen Anfragen eingehalten wird.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Portals providers.PortalResolver
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des Scopus-Fetchers. Ohne API-Key
// ist die Quelle nicht nutzbar, die Konstruktion schlägt dann fehl.
func NewFetcher(cfg *config.Config, logger *zap.Logger, portals providers.PortalResolver) (*Fetcher, error) {
	if cfg.ScopusAPIKey == "" {
		return nil, fmt.Errorf("scopus: SCOPUS_API_KEY ist nicht konfiguriert")
	}
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Portals: portals,
		limiter: providers.NewLimiter(cfg.ScopusDelay),
	}, nil
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "scopus"
}

// Search blättert durch die Scopus-Suche und holt pro Treffer die Autoren
// und das Erscheinungsdatum über den Abstract-Abruf nach. Bei Abbruch oder
// Seitenfehlern mitten im Lauf kommt die bis dahin gesammelte Teilmenge
// zurück.
func (f *Fetcher) Search(ctx context.Context, req providers.Request) ([]*models.Publication, error) {
	log := f.Logger.With(zap.String("term", req.Query))

	max := req.MaxRecords
	if max <= 0 {
		max = f.Config.MaxRecords
	}
	pageSize := f.Config.ScopusPageSize
	portal := providers.ResolvePortal(f.Portals, PortalName)

	var pubs []*models.Publication
	for start := 0; len(pubs) < max; start += pageSize {
		if err := f.limiter.Wait(ctx); err != nil {
			log.Warn("Scopus-Suche abgebrochen, liefere Teilergebnis", zap.Int("count", len(pubs)))
			return pubs, nil
		}

		entries, err := f.fetchPage(ctx, req, start, pageSize)
		if err != nil {
			if len(pubs) == 0 {
				return nil, fmt.Errorf("scopus-suche: %w", err)
			}
			log.Error("Scopus-Seite fehlgeschlagen, liefere Teilergebnis", zap.Int("count", len(pubs)), zap.Error(err))
			return pubs, nil
		}
		if len(entries) == 0 {
			break
		}

		for i := range entries {
			if ctx.Err() != nil {
				log.Warn("Scopus-Suche abgebrochen, liefere Teilergebnis", zap.Int("count", len(pubs)))
				return pubs, nil
			}
			pub := f.mapEntry(&entries[i])
			pub.Portal = portal
			if id := scopusID(entries[i].Identifier); id != "" {
				f.attachDetails(ctx, pub, id)
			}
			pubs = append(pubs, pub)
		}

		if len(entries) < pageSize {
			break
		}
	}

	if len(pubs) > max {
		pubs = pubs[:max]
	}
	log.Info("Scopus-Suche abgeschlossen", zap.Int("count", len(pubs)))
	return pubs, nil
}

// fetchPage holt eine einzelne Trefferseite. Der Jahresfilter wird in die
// Scopus-Query übersetzt (PUBYEAR ist exklusiv, daher minus eins).
func (f *Fetcher) fetchPage(ctx context.Context, req providers.Request, start, pageSize int) ([]Entry, error) {
	query := fmt.Sprintf("TITLE-ABS-KEY(%s)", req.Query)
	if req.MinYear > 0 {
		query += fmt.Sprintf(" AND PUBYEAR > %d", req.MinYear-1)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(pageSize))

	searchURL := fmt.Sprintf("%s/content/search/scopus?%s", f.Config.ScopusBaseURL, params.Encode())
	f.Logger.Debug("Rufe Scopus-Suche ab", zap.Int("start", start))

	body, err := f.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var sr SearchResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("antwort parsen: %w", err)
	}

	// Eine leere Ergebnismenge meldet Scopus als Pseudo-Eintrag mit error-Feld.
	entries := make([]Entry, 0, len(sr.SearchResults.Entries))
	for _, e := range sr.SearchResults.Entries {
		if e.Error != "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// mapEntry wandelt ein Suchergebnis in unser Publication-Modell um.
func (f *Fetcher) mapEntry(e *Entry) *models.Publication {
	issn := e.ISSN
	if issn == "" {
		issn = e.EISSN
	}

	pub := &models.Publication{
		Title:    strings.TrimSpace(e.Title),
		Abstract: strings.TrimSpace(e.Description),
		DOI:      providers.DOIPtr(e.DOI),
		ISSN:     providers.NormalizeISSN(issn),
		Pages:    strings.TrimSpace(e.PageRange),
	}
	pub.PublicationYear, pub.PublicationMonth, pub.PublicationDay = providers.SplitDate(e.CoverDate)
	return pub
}

// attachDetails holt Autoren und Erscheinungsdatum über den Abstract-Abruf
// nach. Fehler degradieren zum Suchergebnis ohne Detail-Felder, der Treffer
// selbst bleibt erhalten.
func (f *Fetcher) attachDetails(ctx context.Context, pub *models.Publication, id string) {
	if err := f.limiter.Wait(ctx); err != nil {
		return
	}

	detailURL := fmt.Sprintf("%s/content/abstract/scopus_id/%s", f.Config.ScopusBaseURL, url.PathEscape(id))
	body, err := f.get(ctx, detailURL)
	if err != nil {
		f.Logger.Warn("Scopus-Detailabruf fehlgeschlagen", zap.String("scopus_id", id), zap.Error(err))
		return
	}
	defer body.Close()

	var ar AbstractResponse
	if err := json.NewDecoder(body).Decode(&ar); err != nil {
		f.Logger.Warn("Scopus-Detailantwort nicht lesbar", zap.String("scopus_id", id), zap.Error(err))
		return
	}

	seen := make(map[string]struct{})
	for i := range ar.Response.Authors.Author {
		pub.Authors = providers.AppendAuthor(pub.Authors, seen, ar.Response.Authors.Author[i].DisplayName())
	}

	if pub.PublicationYear == nil {
		pub.PublicationYear, pub.PublicationMonth, pub.PublicationDay = providers.SplitDate(ar.Response.Coredata.CoverDate)
	}
	if pub.Abstract == "" {
		pub.Abstract = strings.TrimSpace(ar.Response.Coredata.Description)
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-ELS-APIKey", f.Config.ScopusAPIKey)
	if f.Config.ScopusInstToken != "" {
		httpReq.Header.Set("X-ELS-Insttoken", f.Config.ScopusInstToken)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("scopus liefert status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// scopusID holt die nackte ID aus dem dc:identifier
// ("SCOPUS_ID:85012345678" -> "85012345678").
func scopusID(identifier string) string {
	return strings.TrimSpace(strings.TrimPrefix(identifier, "SCOPUS_ID:"))
}
