package models

// PublicationCategory ist die Join-Zeile zwischen Publikation und Kategorie
// und trägt zusätzlich das Quartil des Journals in dieser Kategorie
// (z.B. "Q1"). Vor der Persistenz dient die Zeile als reiner Träger von
// Kategoriename und Quartil, die IDs sind dann noch 0.
type PublicationCategory struct {
	PublicationID uint   `json:"publication_id" gorm:"primaryKey;autoIncrement:false"`
	CategoryID    uint   `json:"category_id" gorm:"primaryKey;autoIncrement:false"`
	Quartile      string `json:"quartile" gorm:"size:4"`

	Category Category `json:"category" gorm:"foreignKey:CategoryID"`
}

// TableName gibt explizit den Tabellennamen an.
func (PublicationCategory) TableName() string {
	return "publication_categories"
}
