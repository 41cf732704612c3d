package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"paper-trawl/config"
	"paper-trawl/models"
	"paper-trawl/providers"
)

// RunOutcome fasst einen kompletten Suchlauf zusammen: die angelegte Suche,
// die persistierten Publikationen und das für Menschen lesbare Protokoll.
type RunOutcome struct {
	SearchID     uint                  `json:"search_id"`
	Publications []*models.Publication `json:"publications"`
	Sources      []SourceOutcome       `json:"sources"`
	Items        []ItemOutcome         `json:"items,omitempty"`
	Log          []string              `json:"log"`
	Created      int                   `json:"created"`
	Updated      int                   `json:"updated"`
	Failed       int                   `json:"failed"`
}

func (o *RunOutcome) logf(format string, args ...interface{}) {
	o.Log = append(o.Log, fmt.Sprintf(format, args...))
}

// SearchService führt komplette Suchläufe aus: alle Quellen abfragen,
// zusammenführen, bereinigen, anreichern, persistieren. Ein Lauf scheitert
// nie hart; im schlimmsten Fall kommt ein leeres Ergebnis samt Protokoll
// zurück.
type SearchService struct {
	Config       *config.Config
	DB           *gorm.DB
	Logger       *zap.Logger
	Orchestrator *Orchestrator
	Enricher     *CategoryEnricher
}

// NewSearchService erstellt den Suchdienst.
func NewSearchService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, orchestrator *Orchestrator, enricher *CategoryEnricher) *SearchService {
	return &SearchService{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Orchestrator: orchestrator,
		Enricher:     enricher,
	}
}

// Run legt eine Suche an und führt die komplette Pipeline für sie aus.
// minYear und maxRecords dürfen 0 sein, dann gelten die Voreinstellungen.
func (s *SearchService) Run(ctx context.Context, query string, minYear, maxRecords int) (outcome *RunOutcome, err error) {
	log := s.Logger.With(zap.String("query", query))

	search := models.Search{Query: query}
	if minYear > 0 {
		search.MinYear = &minYear
	}
	if err := s.DB.Create(&search).Error; err != nil {
		return nil, fmt.Errorf("suche anlegen: %w", err)
	}

	outcome = &RunOutcome{SearchID: search.ID}
	outcome.logf("Suchlauf %d gestartet: %q", search.ID, query)

	// Letzte Verteidigungslinie: ein unerwarteter Abbruch mitten im Lauf
	// liefert trotzdem das bis dahin Gesammelte samt Protokoll zurück.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Suchlauf unerwartet abgebrochen", zap.Any("panic", r))
			outcome.logf("Suchlauf unerwartet abgebrochen: %v", r)
			s.persistRunLog(&search, outcome)
			err = nil
		}
	}()

	req := providers.Request{
		Query:      query,
		MinYear:    minYear,
		MaxRecords: maxRecords,
		FetchPDF:   s.Config.FetchPDFs,
	}

	pubs, sources := s.Orchestrator.FetchAll(ctx, req)
	outcome.Sources = sources
	for _, src := range sources {
		if src.Error != "" {
			outcome.logf("Quelle %s: %d Treffer nach %d Versuchen, zuletzt: %s",
				src.Source, src.Count, src.Attempts, src.Error)
		} else {
			outcome.logf("Quelle %s: %d Treffer nach %d Versuchen", src.Source, src.Count, src.Attempts)
		}
	}
	outcome.logf("%d Rohtreffer über alle Quellen", len(pubs))

	merged := MergePublications(pubs)
	outcome.logf("%d Publikationen nach DOI-Zusammenführung", len(merged))

	cleaned := CleanPublications(merged)
	outcome.logf("%d Publikationen nach Bereinigung", len(cleaned))

	if s.Enricher != nil {
		s.Enricher.Enrich(cleaned)
	}

	upserter, err := NewUpserter(s.DB, s.Logger)
	if err != nil {
		log.Error("Identitäts-Caches nicht ladbar", zap.Error(err))
		outcome.logf("Persistenz nicht möglich: %v", err)
		outcome.Publications = cleaned
		s.persistRunLog(&search, outcome)
		return outcome, nil
	}

	items := upserter.UpsertAll(search.ID, cleaned)
	outcome.Items = items
	persisted := make([]*models.Publication, 0, len(cleaned))
	for i, item := range items {
		switch item.Action {
		case ActionCreated:
			outcome.Created++
			persisted = append(persisted, cleaned[i])
		case ActionUpdated:
			outcome.Updated++
			persisted = append(persisted, cleaned[i])
		default:
			outcome.Failed++
			outcome.logf("Publikation %q nicht gespeichert: %s", itemLabel(item), item.Reason)
		}
	}
	outcome.Publications = persisted
	outcome.logf("%d neu angelegt, %d aktualisiert, %d fehlgeschlagen",
		outcome.Created, outcome.Updated, outcome.Failed)

	s.persistRunLog(&search, outcome)
	log.Info("Suchlauf abgeschlossen",
		zap.Uint("search_id", search.ID),
		zap.Int("publications", len(persisted)),
		zap.Int("created", outcome.Created),
		zap.Int("updated", outcome.Updated))
	return outcome, nil
}

// Forget löscht einen Suchlauf: seine Result-Zeilen, alle Publikationen,
// die danach an keiner anderen Suche mehr hängen (samt Autoren- und
// Kategorie-Zuordnungen), und zuletzt die Suche selbst.
func (s *SearchService) Forget(ctx context.Context, searchID uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var search models.Search
		if err := tx.First(&search, searchID).Error; err != nil {
			return err
		}

		var pubIDs []uint
		if err := tx.Model(&models.Result{}).Where("search_id = ?", searchID).
			Pluck("publication_id", &pubIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("search_id = ?", searchID).Delete(&models.Result{}).Error; err != nil {
			return err
		}

		orphans := make([]uint, 0, len(pubIDs))
		for _, id := range pubIDs {
			var n int64
			if err := tx.Model(&models.Result{}).Where("publication_id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				orphans = append(orphans, id)
			}
		}

		if len(orphans) > 0 {
			if err := tx.Where("publication_id IN ?", orphans).Delete(&models.PublicationAuthor{}).Error; err != nil {
				return err
			}
			if err := tx.Where("publication_id IN ?", orphans).Delete(&models.PublicationCategory{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", orphans).Delete(&models.Publication{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Delete(&models.Search{}, searchID).Error; err != nil {
			return err
		}

		s.Logger.Info("Suche vergessen",
			zap.Uint("search_id", searchID),
			zap.Int("results_removed", len(pubIDs)),
			zap.Int("publications_removed", len(orphans)))
		return nil
	})
	return err
}

// persistRunLog hängt das Protokoll als JSON an die Such-Zeile. Fehler
// hier sind nicht kritisch und werden nur protokolliert.
func (s *SearchService) persistRunLog(search *models.Search, outcome *RunOutcome) {
	raw, err := json.Marshal(outcome.Log)
	if err != nil {
		s.Logger.Warn("Protokoll nicht serialisierbar", zap.Error(err))
		return
	}
	if err := s.DB.Model(search).Update("run_log", datatypes.JSON(raw)).Error; err != nil {
		s.Logger.Warn("Protokoll nicht gespeichert", zap.Uint("search_id", search.ID), zap.Error(err))
	}
}

func itemLabel(item ItemOutcome) string {
	if item.DOI != "" {
		return item.DOI
	}
	return item.Title
}
