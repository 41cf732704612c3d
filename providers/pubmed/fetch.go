package pubmed

import (
	"context"
	"encoding/json"
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

// efetchBatchSize begrenzt, wie viele PMIDs pro EFetch-Aufruf angefragt
// werden, damit die URL nicht zu lang wird.
const efetchBatchSize = 200

// PortalName ist die Portal-Beschreibung für diese Quelle.
const PortalName = "PubMed"

// Fetcher kapselt die Logik zur Interaktion mit PubMed.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Portals providers.PortalResolver
	PDF     providers.PDFFetcher
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers. portals und
// pdfFetcher dürfen nil sein, dann bleiben Portale unpersistiert bzw. werden
// keine Volltexte geladen.
func NewFetcher(cfg *config.Config, logger *zap.Logger, portals providers.PortalResolver, pdfFetcher providers.PDFFetcher) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Portals: portals,
		PDF:     pdfFetcher,
		limiter: providers.NewLimiter(cfg.PubMedDelay),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Search führt eine vollständige Suche auf PubMed durch: erst die PMIDs via
// ESearch, dann die Metadaten in Batches via EFetch. Bei Context-Abbruch oder
// Seitenfehlern mitten im Lauf kommt die bis dahin gesammelte Teilmenge zurück.
func (f *Fetcher) Search(ctx context.Context, req providers.Request) ([]*models.Publication, error) {
	log := f.Logger.With(zap.String("term", req.Query))

	ids, err := f.searchIDs(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("PubMed-Suche abgebrochen")
			return nil, nil
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("pubmed id-suche: %w", err)
		}
		log.Error("PubMed ESearch abgebrochen, verarbeite bisherige IDs", zap.Int("ids", len(ids)), zap.Error(err))
	}
	log.Info("PubMed ESearch abgeschlossen", zap.Int("total_ids", len(ids)))

	portal := providers.ResolvePortal(f.Portals, PortalName)

	var pubs []*models.Publication
	for start := 0; start < len(ids); start += efetchBatchSize {
		end := start + efetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		if err := f.limiter.Wait(ctx); err != nil {
			log.Warn("PubMed-Suche abgebrochen, liefere Teilergebnis", zap.Int("count", len(pubs)))
			return pubs, nil
		}

		batch, err := f.fetchBatch(ctx, ids[start:end])
		if err != nil {
			if len(pubs) == 0 {
				return nil, fmt.Errorf("pubmed efetch: %w", err)
			}
			log.Error("PubMed EFetch fehlgeschlagen, liefere Teilergebnis", zap.Int("count", len(pubs)), zap.Error(err))
			return pubs, nil
		}

		for _, article := range batch {
			pub, landingURL := f.mapArticle(article)
			pub.Portal = portal
			if req.FetchPDF && f.PDF != nil && landingURL != "" {
				f.attachPDF(ctx, pub, landingURL)
			}
			pubs = append(pubs, pub)
		}
	}

	log.Info("PubMed-Suche abgeschlossen", zap.Int("count", len(pubs)))
	return pubs, nil
}

// searchIDs blättert durch ESearch, bis eine Seite leer oder kurz ist oder
// das Limit erreicht wird.
func (f *Fetcher) searchIDs(ctx context.Context, req providers.Request) ([]string, error) {
	max := req.MaxRecords
	if max <= 0 {
		max = f.Config.MaxRecords
	}
	pageSize := f.Config.PubMedPageSize

	var allIDs []string
	for offset := 0; len(allIDs) < max; offset += pageSize {
		if err := f.limiter.Wait(ctx); err != nil {
			return allIDs, err
		}

		searchURL := f.buildEsearchURL(req, pageSize, offset)
		f.Logger.Debug("Rufe ESearch-URL auf", zap.String("url", searchURL))

		resp, err := f.get(ctx, searchURL)
		if err != nil {
			return allIDs, err
		}

		var esearchResp ESearchResponse
		err = json.NewDecoder(resp.Body).Decode(&esearchResp)
		resp.Body.Close()
		if err != nil {
			return allIDs, fmt.Errorf("esearch-antwort parsen: %w", err)
		}

		ids := esearchResp.ESearchResult.IdList
		if len(ids) == 0 {
			break
		}
		allIDs = append(allIDs, ids...)

		if len(ids) < pageSize {
			break
		}
	}

	if len(allIDs) > max {
		allIDs = allIDs[:max]
	}
	return allIDs, nil
}

// fetchBatch holt die Metadaten für eine Gruppe von PMIDs via EFetch.
func (f *Fetcher) fetchBatch(ctx context.Context, ids []string) ([]*Article, error) {
	efetchURL := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&id=%s&retmode=xml",
		f.Config.PubMedBaseURL, strings.Join(ids, ","))
	if f.Config.PubMedAPIKey != "" {
		efetchURL += "&api_key=" + f.Config.PubMedAPIKey
	}
	f.Logger.Debug("Rufe EFetch-URL auf", zap.Int("ids", len(ids)))

	resp, err := f.get(ctx, efetchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var articleSet ArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		return nil, fmt.Errorf("efetch-antwort parsen: %w", err)
	}

	out := make([]*Article, 0, len(articleSet.Articles))
	for i := range articleSet.Articles {
		out = append(out, &articleSet.Articles[i])
	}
	return out, nil
}

// mapArticle wandelt ein XML-Article-Objekt in unser Publication-Modell um
// und liefert zusätzlich die PMC-Artikelseite für den Volltextabruf, sofern
// es eine gibt.
func (f *Fetcher) mapArticle(article *Article) (*models.Publication, string) {
	a := &article.MedlineCitation.Article

	pub := &models.Publication{
		Title: a.Title,
		ISSN:  providers.NormalizeISSN(a.Journal.ISSN),
		Pages: a.Pagination.MedlinePgn,
	}

	// Abstract-Abschnitte zusammensetzen; Labels bleiben als Präfix erhalten.
	var sections []string
	for _, sec := range a.Abstract.Sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		if sec.Label != "" {
			text = sec.Label + ": " + text
		}
		sections = append(sections, text)
	}
	pub.Abstract = strings.Join(sections, "\n")

	seen := make(map[string]struct{})
	for _, author := range a.Authors {
		name := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if name == "" {
			name = author.CollectiveName
		}
		pub.Authors = providers.AppendAuthor(pub.Authors, seen, name)
	}

	for _, id := range a.ELocationID {
		if id.IDType == "doi" && id.ValidYN != "N" {
			pub.DOI = providers.DOIPtr(id.Value)
			break
		}
	}

	var landingURL string
	for _, id := range article.PubmedData.ArticleIDs {
		switch id.IDType {
		case "doi":
			if pub.DOI == nil {
				pub.DOI = providers.DOIPtr(id.Value)
			}
		case "pmc":
			if pmc := strings.TrimSpace(id.Value); pmc != "" {
				landingURL = fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/", pmc)
			}
		}
	}

	pubDate := a.Journal.PubDate
	if y, err := strconv.Atoi(pubDate.Year); err == nil && y > 0 {
		pub.PublicationYear = &y
	}
	pub.PublicationMonth = providers.MonthNumber(pubDate.Month)
	if d, err := strconv.Atoi(pubDate.Day); err == nil && d >= 1 && d <= 31 {
		pub.PublicationDay = &d
	}

	return pub, landingURL
}

// attachPDF versucht, über die PMC-Artikelseite den Volltext zu laden.
// Fehler brechen die Suche nicht ab.
func (f *Fetcher) attachPDF(ctx context.Context, pub *models.Publication, landingURL string) {
	doc, err := f.PDF.FetchByLandingPage(ctx, landingURL)
	if err != nil {
		f.Logger.Warn("PMC-Volltext nicht ladbar", zap.String("page", landingURL), zap.Error(err))
		return
	}
	pub.PdfUrl = doc.URL
	pub.PdfText = doc.Text
	if pub.Pages == "" && doc.Pages > 0 {
		pub.Pages = strconv.Itoa(doc.Pages)
	}
}

// buildEsearchURL baut die URL für eine ESearch-Anfrage.
func (f *Fetcher) buildEsearchURL(req providers.Request, retmax, retstart int) string {
	base := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=%d&retstart=%d",
		f.Config.PubMedBaseURL, url.QueryEscape(req.Query), retmax, retstart)
	if f.Config.PubMedAPIKey != "" {
		base += "&api_key=" + f.Config.PubMedAPIKey
	}
	if req.MinYear > 0 {
		base += fmt.Sprintf("&mindate=%d&maxdate=3000&datetype=pdat", req.MinYear)
	}
	return base
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("pubmed liefert status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

