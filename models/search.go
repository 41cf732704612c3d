package models

import (
	"time"

	"gorm.io/datatypes"
)

// Search ist ein gespeicherter Suchlauf: die Anfrage selbst plus das
// Protokoll des letzten Durchlaufs. Die gefundenen Publikationen hängen
// über Results an der Suche.
type Search struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Query   string `json:"query" gorm:"type:text;not null"`
	MinYear *int   `json:"min_year,omitempty"`

	// RunLog enthält die Meldungen des letzten Durchlaufs als JSON-Array.
	RunLog datatypes.JSON `json:"run_log,omitempty" gorm:"type:jsonb"`

	Results []Result `json:"results,omitempty" gorm:"foreignKey:SearchID"`
}

// TableName gibt explizit den Tabellennamen an.
func (Search) TableName() string {
	return "searches"
}
