package models

// Result verknüpft eine Suche mit einer gefundenen Publikation. Der
// zusammengesetzte Primärschlüssel stellt sicher, dass dieselbe Publikation
// pro Suche höchstens einmal auftaucht.
type Result struct {
	SearchID      uint `json:"search_id" gorm:"primaryKey;autoIncrement:false"`
	PublicationID uint `json:"publication_id" gorm:"primaryKey;autoIncrement:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (Result) TableName() string {
	return "results"
}
