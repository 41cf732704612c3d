package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-trawl/models"
)

// Aktionen eines ItemOutcome.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionFailed  = "failed"
)

// ItemOutcome beschreibt, was der Upserter mit einer einzelnen Publikation
// gemacht hat. Reason ist nur bei ActionFailed gesetzt.
type ItemOutcome struct {
	DOI           string `json:"doi,omitempty"`
	Title         string `json:"title,omitempty"`
	PublicationID uint   `json:"publication_id,omitempty"`
	Action        string `json:"action"`
	Reason        string `json:"reason,omitempty"`
}

// Upserter schreibt einen bereinigten, angereicherten Batch in die Datenbank
// und löst dabei Identitäten auf: Publikationen über die DOI, ersatzweise
// über den normalisierten Titel; Autoren, Kategorien und Portale über ihre
// Namen. Jede Publikation läuft in einer eigenen Transaktion, damit ein
// Fehler nicht den Rest des Batches mitreißt. Ein Upserter gilt für genau
// einen Lauf und ist nicht für nebenläufige Nutzung gedacht.
type Upserter struct {
	DB     *gorm.DB
	Logger *zap.Logger

	portals    map[string]uint
	authors    map[string]uint
	categories map[string]uint
	byDOI      map[string]uint
	byTitle    map[string]uint

	unknownPortalID uint
}

// txCreates sammelt die in einer laufenden Transaktion angelegten Autoren
// und Kategorien. Die Caches des Upserters werden erst nach dem Commit
// ergänzt, damit ein Rollback keine toten IDs hinterlässt.
type txCreates struct {
	authors    map[string]uint
	categories map[string]uint
}

// NewUpserter erstellt einen Upserter und lädt die Identitäts-Caches aus
// der Datenbank. Fehlt das Unknown-Portal, wird es angelegt.
func NewUpserter(db *gorm.DB, logger *zap.Logger) (*Upserter, error) {
	u := &Upserter{
		DB:         db,
		Logger:     logger,
		portals:    make(map[string]uint),
		authors:    make(map[string]uint),
		categories: make(map[string]uint),
		byDOI:      make(map[string]uint),
		byTitle:    make(map[string]uint),
	}
	if err := u.loadCaches(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Upserter) loadCaches() error {
	var portals []models.Portal
	if err := u.DB.Find(&portals).Error; err != nil {
		return fmt.Errorf("portale laden: %w", err)
	}
	for _, p := range portals {
		u.portals[strings.ToLower(p.Description)] = p.ID
		if strings.EqualFold(p.Description, models.UnknownPortalName) {
			u.unknownPortalID = p.ID
		}
	}
	if u.unknownPortalID == 0 {
		portal := models.Portal{Description: models.UnknownPortalName}
		if err := u.DB.Create(&portal).Error; err != nil {
			return fmt.Errorf("unknown-portal anlegen: %w", err)
		}
		u.portals[strings.ToLower(portal.Description)] = portal.ID
		u.unknownPortalID = portal.ID
	}

	var authors []models.Author
	if err := u.DB.Find(&authors).Error; err != nil {
		return fmt.Errorf("autoren laden: %w", err)
	}
	for _, a := range authors {
		u.authors[strings.ToLower(strings.TrimSpace(a.Name))] = a.ID
	}

	var categories []models.Category
	if err := u.DB.Find(&categories).Error; err != nil {
		return fmt.Errorf("kategorien laden: %w", err)
	}
	for _, c := range categories {
		u.categories[strings.ToLower(c.CategoryName)] = c.ID
	}

	var pubs []models.Publication
	if err := u.DB.Select("id", "doi", "title").Find(&pubs).Error; err != nil {
		return fmt.Errorf("publikationen laden: %w", err)
	}
	for _, p := range pubs {
		if doi := strings.TrimSpace(p.DOIValue()); doi != "" {
			u.byDOI[strings.ToLower(doi)] = p.ID
		}
		if key := titleKey(p.Title); key != "" {
			if _, ok := u.byTitle[key]; !ok {
				u.byTitle[key] = p.ID
			}
		}
	}

	u.Logger.Debug("Identitäts-Caches geladen",
		zap.Int("portals", len(u.portals)),
		zap.Int("authors", len(u.authors)),
		zap.Int("categories", len(u.categories)),
		zap.Int("publications", len(u.byDOI)))
	return nil
}

// UpsertAll schreibt alle Publikationen einzeln in die Datenbank und hängt
// jede über eine Result-Zeile an den Suchlauf. Fehler einzelner
// Publikationen werden protokolliert, der Batch läuft weiter.
func (u *Upserter) UpsertAll(searchID uint, pubs []*models.Publication) []ItemOutcome {
	outcomes := make([]ItemOutcome, 0, len(pubs))
	for _, pub := range pubs {
		outcome := u.upsertOne(searchID, pub)
		if outcome.Action == ActionFailed {
			u.Logger.Error("Publikation nicht gespeichert",
				zap.String("doi", outcome.DOI),
				zap.String("title", outcome.Title),
				zap.String("reason", outcome.Reason))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (u *Upserter) upsertOne(searchID uint, pub *models.Publication) ItemOutcome {
	outcome := ItemOutcome{DOI: pub.DOIValue(), Title: pub.Title}

	doiKey := strings.ToLower(strings.TrimSpace(pub.DOIValue()))
	titKey := titleKey(pub.Title)

	existingID := uint(0)
	if doiKey != "" {
		existingID = u.byDOI[doiKey]
	}
	if existingID == 0 && titKey != "" {
		existingID = u.byTitle[titKey]
	}

	clampDate(pub)
	portalID := u.resolvePortalID(pub)
	created := &txCreates{authors: make(map[string]uint), categories: make(map[string]uint)}

	err := u.DB.Transaction(func(tx *gorm.DB) error {
		if existingID == 0 {
			if err := u.insert(tx, pub, portalID); err != nil {
				return err
			}
			outcome.Action = ActionCreated
		} else {
			if err := u.update(tx, existingID, pub, portalID); err != nil {
				return err
			}
			outcome.Action = ActionUpdated
		}

		if err := u.linkAuthors(tx, pub, created); err != nil {
			return err
		}
		if err := u.linkCategories(tx, pub, created); err != nil {
			return err
		}
		return u.ensureResult(tx, searchID, pub.ID)
	})
	if err != nil {
		pub.ID = 0
		outcome.Action = ActionFailed
		outcome.Reason = err.Error()
		return outcome
	}

	for k, v := range created.authors {
		u.authors[k] = v
	}
	for k, v := range created.categories {
		u.categories[k] = v
	}
	if doiKey != "" {
		u.byDOI[doiKey] = pub.ID
	}
	if titKey != "" {
		if _, ok := u.byTitle[titKey]; !ok {
			u.byTitle[titKey] = pub.ID
		}
	}

	outcome.PublicationID = pub.ID
	return outcome
}

// resolvePortalID liefert die Portal-ID zur Beschreibung der Publikation.
// Leere oder unbekannte Beschreibungen fallen auf das Unknown-Portal zurück.
func (u *Upserter) resolvePortalID(pub *models.Publication) uint {
	description := ""
	if pub.Portal != nil {
		description = strings.TrimSpace(pub.Portal.Description)
	}
	if description != "" {
		key := strings.ToLower(description)
		if id, ok := u.portals[key]; ok {
			return id
		}
		if pub.Portal.ID != 0 {
			// Vom PortalResolver während des Laufs angelegt; der Cache
			// stammt von davor.
			u.portals[key] = pub.Portal.ID
			return pub.Portal.ID
		}
	}
	return u.unknownPortalID
}

// insert legt die nackte Publikations-Zeile an, um eine ID zu bekommen.
// Die Join-Zeilen folgen danach, deshalb bleiben alle Assoziationen außen vor.
func (u *Upserter) insert(tx *gorm.DB, pub *models.Publication, portalID uint) error {
	pub.PortalID = &portalID
	if err := tx.Omit(clause.Associations).Create(pub).Error; err != nil {
		return fmt.Errorf("publikation anlegen: %w", err)
	}
	return nil
}

// update überschreibt die veränderlichen Felder der bestehenden Zeile.
// Kategorien werden komplett neu aufgebaut, Autoren-Zuordnungen bleiben
// bestehen und werden nur ergänzt.
func (u *Upserter) update(tx *gorm.DB, id uint, pub *models.Publication, portalID uint) error {
	updates := map[string]interface{}{
		"title":             pub.Title,
		"abstract":          pub.Abstract,
		"issn":              pub.ISSN,
		"pdf_url":           pub.PdfUrl,
		"pdf_text":          pub.PdfText,
		"pages":             pub.Pages,
		"publication_year":  pub.PublicationYear,
		"publication_month": pub.PublicationMonth,
		"publication_day":   pub.PublicationDay,
		"portal_id":         portalID,
	}
	// Die DOI ist Identitätsschlüssel; eine leere eingehende DOI darf eine
	// vorhandene nicht löschen.
	if doi := strings.TrimSpace(pub.DOIValue()); doi != "" {
		updates["doi"] = doi
	}
	if err := tx.Model(&models.Publication{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("publikation aktualisieren: %w", err)
	}
	pub.ID = id
	pub.PortalID = &portalID

	if err := tx.Where("publication_id = ?", id).Delete(&models.PublicationCategory{}).Error; err != nil {
		return fmt.Errorf("kategorien leeren: %w", err)
	}
	return nil
}

func (u *Upserter) linkAuthors(tx *gorm.DB, pub *models.Publication, created *txCreates) error {
	seen := make(map[string]struct{})
	for i := range pub.Authors {
		name := strings.TrimSpace(pub.Authors[i].Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		authorID, ok := u.authors[key]
		if !ok {
			authorID, ok = created.authors[key]
		}
		if !ok {
			author := models.Author{Name: name}
			if err := tx.Create(&author).Error; err != nil {
				return fmt.Errorf("autor %q anlegen: %w", name, err)
			}
			authorID = author.ID
			created.authors[key] = authorID
		}

		var count int64
		if err := tx.Model(&models.PublicationAuthor{}).
			Where("publication_id = ? AND author_id = ?", pub.ID, authorID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			link := models.PublicationAuthor{PublicationID: pub.ID, AuthorID: authorID}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("autor %q verknüpfen: %w", name, err)
			}
		}
	}
	return nil
}

func (u *Upserter) linkCategories(tx *gorm.DB, pub *models.Publication, created *txCreates) error {
	// Dedup nur über den Namen: trägt eine Publikation dieselbe Kategorie
	// mit zwei Quartilen, wird das zuerst gesehene persistiert.
	seen := make(map[string]struct{})
	for i := range pub.Categories {
		name := strings.TrimSpace(pub.Categories[i].Category.CategoryName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		categoryID, ok := u.categories[key]
		if !ok {
			categoryID, ok = created.categories[key]
		}
		if !ok {
			category := models.Category{CategoryName: name}
			if err := tx.Create(&category).Error; err != nil {
				return fmt.Errorf("kategorie %q anlegen: %w", name, err)
			}
			categoryID = category.ID
			created.categories[key] = categoryID
		}

		var count int64
		if err := tx.Model(&models.PublicationCategory{}).
			Where("publication_id = ? AND category_id = ?", pub.ID, categoryID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			link := models.PublicationCategory{
				PublicationID: pub.ID,
				CategoryID:    categoryID,
				Quartile:      pub.Categories[i].Quartile,
			}
			if err := tx.Omit(clause.Associations).Create(&link).Error; err != nil {
				return fmt.Errorf("kategorie %q verknüpfen: %w", name, err)
			}
		}
	}
	return nil
}

// ensureResult hängt die Publikation an den Suchlauf, falls noch nicht geschehen.
func (u *Upserter) ensureResult(tx *gorm.DB, searchID, publicationID uint) error {
	if searchID == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&models.Result{}).
		Where("search_id = ? AND publication_id = ?", searchID, publicationID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.Result{SearchID: searchID, PublicationID: publicationID}).Error
}

// titleKey normalisiert einen Titel für den Identitätsvergleich:
// Kleinbuchstaben, ohne jegliche Leerzeichen.
func titleKey(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "")
}

// clampDate verwirft Monats- und Tageswerte außerhalb des gültigen Bereichs.
func clampDate(pub *models.Publication) {
	if pub.PublicationMonth != nil && (*pub.PublicationMonth < 1 || *pub.PublicationMonth > 12) {
		pub.PublicationMonth = nil
	}
	if pub.PublicationDay != nil && (*pub.PublicationDay < 1 || *pub.PublicationDay > 31) {
		pub.PublicationDay = nil
	}
}
