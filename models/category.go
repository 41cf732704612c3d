package models

// Category ist eine fachliche Kategorie (z.B. "Biology"), wie sie aus den
// Journal-Rankings stammt. Die Quartilsangabe hängt an der Zuordnung zur
// Publikation, nicht an der Kategorie selbst.
type Category struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CategoryName string `json:"category_name" gorm:"uniqueIndex;size:512"`
}

// TableName gibt explizit den Tabellennamen an.
func (Category) TableName() string {
	return "categories"
}
