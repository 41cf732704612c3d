// Package pubmed enthält die Logik für die Interaktion mit der PubMed-API
// (ESearch/EFetch).
package pubmed

import (
	"encoding/xml"
)

// ESearchResponse repräsentiert die JSON-Antwort von ESearch für die ID-Suche.
type ESearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IdList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// ArticleSet repräsentiert das gesamte XML-Dokument von EFetch.
type ArticleSet struct {
	XMLName  xml.Name  `xml:"PubmedArticleSet"`
	Articles []Article `xml:"PubmedArticle"`
}

// Article repräsentiert einen einzelnen Artikel in der XML-Antwort.
type Article struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []AbstractSection `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []Author `xml:"AuthorList>Author"`
			Journal struct {
				ISSN    string `xml:"ISSN"`
				PubDate struct {
					Year  string `xml:"Year"`
					Month string `xml:"Month"`
					Day   string `xml:"Day"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Pagination struct {
				MedlinePgn string `xml:"MedlinePgn"`
			} `xml:"Pagination"`
			ELocationID []ELocationID `xml:"ELocationID"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

// AbstractSection ist ein Abschnitt des Abstracts, optional mit Label
// (z.B. "BACKGROUND").
type AbstractSection struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

// Author ist ein Autoreintrag; Kollektive haben nur CollectiveName.
type Author struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

// ELocationID trägt elektronische IDs wie die DOI direkt am Artikel.
type ELocationID struct {
	IDType  string `xml:"EIdType,attr"`
	ValidYN string `xml:"ValidYN,attr"`
	Value   string `xml:",chardata"`
}

// ArticleID ist ein Eintrag der ArticleIdList (doi, pmc, pubmed, ...).
type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
