package models

// UnknownPortalName ist der Fallback, falls eine Publikation keiner
// bekannten Quelle zugeordnet werden kann.
const UnknownPortalName = "Unknown"

// Portal ist die Herkunftsquelle einer Publikation (PubMed, ArXiv, ...).
type Portal struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Description string `json:"description" gorm:"uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Portal) TableName() string {
	return "portals"
}
