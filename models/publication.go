package models

import (
	"time"
)

// Publication repräsentiert eine wissenschaftliche Veröffentlichung im einheitlichen Schema,
// in das alle Quellsysteme normalisiert werden.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DOI ist der primäre Identitätsschlüssel, sofern vorhanden. NULL statt Leerstring,
	// damit der Unique-Index Publikationen ohne DOI nicht kollidieren lässt.
	DOI      *string `json:"doi,omitempty" gorm:"column:doi;uniqueIndex;size:512"`
	Title    string  `json:"title" gorm:"type:text"`
	Abstract string  `json:"abstract,omitempty" gorm:"type:text"`
	ISSN     string  `json:"issn,omitempty" gorm:"column:issn;index"`

	PdfUrl  string `json:"pdf_url,omitempty"`
	PdfText string `json:"pdf_text,omitempty" gorm:"type:text"`
	Pages   string `json:"pages,omitempty"`

	// Erscheinungsdatum in Einzelteilen; fehlende Teile bleiben NULL statt 0.
	PublicationYear  *int `json:"publication_year,omitempty"`
	PublicationMonth *int `json:"publication_month,omitempty"`
	PublicationDay   *int `json:"publication_day,omitempty"`

	PortalID *uint   `json:"portal_id,omitempty"`
	Portal   *Portal `json:"portal,omitempty"`

	Authors    []Author              `json:"authors,omitempty" gorm:"many2many:publication_authors"`
	Categories []PublicationCategory `json:"categories,omitempty" gorm:"foreignKey:PublicationID"`
	Results    []Result              `json:"-" gorm:"foreignKey:PublicationID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Publication) TableName() string {
	return "publications"
}

// DOIValue liefert die DOI als String, leer falls keine gesetzt ist.
func (p *Publication) DOIValue() string {
	if p.DOI == nil {
		return ""
	}
	return *p.DOI
}
