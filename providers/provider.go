package providers

import (
	"context"

	"paper-trawl/models"
)

// Request beschreibt einen Suchauftrag, wie ihn jeder Provider entgegennimmt.
type Request struct {
	// Query ist der Suchbegriff in der Syntax der jeweiligen Quelle.
	Query string
	// MinYear begrenzt die Treffer auf Publikationen ab diesem Jahr; 0 = keine Grenze.
	MinYear int
	// MaxRecords begrenzt die Trefferzahl; 0 = Voreinstellung des Providers.
	MaxRecords int
	// FetchPDF steuert, ob der Provider Volltexte nachlädt, sofern er das kann.
	FetchPDF bool
}

// Provider ist das Interface, das jede Such-Quelle (PubMed, ArXiv, Zenodo, Scopus)
// implementieren muss.
type Provider interface {
	// Search führt eine Suche durch und gibt eine Liste von standardisierten
	// Publication-Modellen zurück. Bei Abbruch über den Context darf eine
	// Teilmenge zurückkommen.
	Search(ctx context.Context, req Request) ([]*models.Publication, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string
}

// PortalResolver löst einen Quellennamen in die persistierte Portal-Zeile
// auf. Implementiert vom services-Paket; hier definiert, damit Provider keine
// Abhängigkeit auf die Services bekommen.
type PortalResolver interface {
	Resolve(description string) (*models.Portal, error)
}

// ResolvePortal holt das Portal zum Namen über den Resolver. Ohne Resolver
// oder bei Fehlern kommt eine unpersistierte Zeile zurück, damit die Suche
// weiterläuft; der Upserter löst die Beschreibung dann erneut auf.
func ResolvePortal(r PortalResolver, name string) *models.Portal {
	if r == nil {
		return &models.Portal{Description: name}
	}
	p, err := r.Resolve(name)
	if err != nil || p == nil {
		return &models.Portal{Description: name}
	}
	return p
}

// PDFDocument ist das Ergebnis eines Volltext-Abrufs.
type PDFDocument struct {
	URL   string
	Text  string
	Pages int
}

// PDFFetcher lädt zu einer Publikation den PDF-Volltext nach. Implementiert
// vom pdftext-Paket; hier definiert, damit Provider keine Abhängigkeit auf
// die Services bekommen.
type PDFFetcher interface {
	// FetchByURL lädt das PDF unter der gegebenen Adresse und extrahiert den Text.
	FetchByURL(ctx context.Context, url string) (*PDFDocument, error)
	// FetchByLandingPage sucht auf einer Artikelseite nach einem PDF-Link und
	// lädt dann wie FetchByURL.
	FetchByLandingPage(ctx context.Context, pageURL string) (*PDFDocument, error)
}
