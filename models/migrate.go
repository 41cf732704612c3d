package models

import "gorm.io/gorm"

// Migrate legt das Schema an bzw. zieht es nach. Die Join-Tabelle für
// Autoren wird explizit registriert, damit GORM unsere Struktur mit
// zusammengesetztem Primärschlüssel verwendet.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Publication{}, "Authors", &PublicationAuthor{}); err != nil {
		return err
	}
	return db.AutoMigrate(
		&Portal{},
		&Author{},
		&Category{},
		&Publication{},
		&PublicationCategory{},
		&Search{},
		&Result{},
	)
}
