// Package zenodo enthält die Logik für die Interaktion mit der Zenodo-API.
package zenodo

// SearchResponse repräsentiert die JSON-Antwort der Records-Suche.
type SearchResponse struct {
	Hits struct {
		Total int   `json:"total"`
		Hits  []Hit `json:"hits"`
	} `json:"hits"`
}

// Hit ist ein einzelner Treffer. Die DOI steht sowohl am Treffer selbst als
// auch in den Metadaten.
type Hit struct {
	DOI      string `json:"doi"`
	Metadata struct {
		Title           string    `json:"title"`
		Description     string    `json:"description"`
		PublicationDate string    `json:"publication_date"`
		DOI             string    `json:"doi"`
		Creators        []Creator `json:"creators"`
		Journal         struct {
			ISSN  string `json:"issn"`
			Pages string `json:"pages"`
		} `json:"journal"`
	} `json:"metadata"`
	Files []File `json:"files"`
}

// Creator ist ein Autoreintrag ("Nachname, Vorname" bei Zenodo üblich).
type Creator struct {
	Name string `json:"name"`
}

// File ist ein Datei-Anhang des Records.
type File struct {
	Key   string `json:"key"`
	Links struct {
		Self string `json:"self"`
	} `json:"links"`
}
