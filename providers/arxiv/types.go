// Package arxiv enthält die Logik für die Interaktion mit der ArXiv-API
// (Atom-Feed).
package arxiv

import "encoding/xml"

// Feed repräsentiert die Atom-Antwort der ArXiv-API.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []Entry  `xml:"entry"`
}

// Entry ist ein einzelnes Suchergebnis. Die DOI kommt aus dem
// arxiv-Namensraum und ist nicht immer gesetzt.
type Entry struct {
	ID        string   `xml:"id"`
	Title     string   `xml:"title"`
	Summary   string   `xml:"summary"`
	Published string   `xml:"published"`
	DOI       string   `xml:"doi"`
	Authors   []Author `xml:"author"`
	Links     []Link   `xml:"link"`
}

// Author ist ein Autoreintrag im Feed.
type Author struct {
	Name string `xml:"name"`
}

// Link ist ein Verweis am Eintrag; der PDF-Link trägt title="pdf" bzw.
// type="application/pdf".
type Link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
