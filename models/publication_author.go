package models

// PublicationAuthor ist die Join-Zeile zwischen Publikation und Autor.
// Explizit modelliert, damit der Upserter Zuordnungen gezielt anlegen kann,
// ohne bestehende zu entfernen.
type PublicationAuthor struct {
	PublicationID uint `json:"publication_id" gorm:"primaryKey;autoIncrement:false"`
	AuthorID      uint `json:"author_id" gorm:"primaryKey;autoIncrement:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (PublicationAuthor) TableName() string {
	return "publication_authors"
}
