package models

// Author ist eine Autorin oder ein Autor einer Publikation. Namen werden
// dedupliziert über einen Unique-Index gehalten.
type Author struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;size:512"`
}

// TableName gibt explizit den Tabellennamen an.
func (Author) TableName() string {
	return "authors"
}
