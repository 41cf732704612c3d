// Package scopus enthält die Logik für die Interaktion mit der Scopus-API
// von Elsevier (Suche plus Abstract-Abruf).
package scopus

// SearchResponse repräsentiert die JSON-Antwort der Scopus-Suche.
type SearchResponse struct {
	SearchResults struct {
		TotalResults string  `json:"opensearch:totalResults"`
		Entries      []Entry `json:"entry"`
	} `json:"search-results"`
}

// Entry ist ein einzelnes Suchergebnis. Autoren und fehlende Datumsteile
// liefert erst der Abstract-Abruf über die Scopus-ID.
type Entry struct {
	Identifier  string `json:"dc:identifier"` // "SCOPUS_ID:85012345678"
	Title       string `json:"dc:title"`
	Description string `json:"dc:description"`
	DOI         string `json:"prism:doi"`
	ISSN        string `json:"prism:issn"`
	EISSN       string `json:"prism:eIssn"`
	PageRange   string `json:"prism:pageRange"`
	CoverDate   string `json:"prism:coverDate"` // "2024-01-15"

	// Error ist gesetzt, wenn Scopus eine leere Ergebnismenge als
	// Pseudo-Eintrag meldet ("Result set was empty").
	Error string `json:"error"`
}

// AbstractResponse repräsentiert die Antwort des Abstract-Abrufs.
type AbstractResponse struct {
	Response struct {
		Coredata struct {
			CoverDate   string `json:"prism:coverDate"`
			Description string `json:"dc:description"`
		} `json:"coredata"`
		Authors struct {
			Author []Author `json:"author"`
		} `json:"authors"`
	} `json:"abstracts-retrieval-response"`
}

// Author ist ein Autoreintrag des Abstract-Abrufs.
type Author struct {
	IndexedName   string `json:"ce:indexed-name"`
	PreferredName struct {
		GivenName string `json:"ce:given-name"`
		Surname   string `json:"ce:surname"`
	} `json:"preferred-name"`
}

// DisplayName setzt den Anzeigenamen aus Vor- und Nachname zusammen und
// fällt auf den indexierten Namen ("Doe J.") zurück.
func (a *Author) DisplayName() string {
	if a.PreferredName.GivenName != "" && a.PreferredName.Surname != "" {
		return a.PreferredName.GivenName + " " + a.PreferredName.Surname
	}
	if a.PreferredName.Surname != "" {
		return a.PreferredName.Surname
	}
	return a.IndexedName
}
