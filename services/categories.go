package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"paper-trawl/models"
	"paper-trawl/providers"
)

// categoryPattern trennt "Cell Biology (Q1)" in Name und Quartil. Einträge
// ohne diese Form werden verworfen.
var categoryPattern = regexp.MustCompile(`^(.*\S)\s*\((Q[1-4])\)$`)

// CategoryRating ist ein (Kategorie, Quartil)-Eintrag eines Journals.
type CategoryRating struct {
	Name     string
	Quartile string
}

// Journal ist der transiente Index-Eintrag zu einer ISSN. Er existiert nur
// für die Anreicherung und wird nie persistiert.
type Journal struct {
	ISSN       string
	Categories []CategoryRating
}

// CategoryEnricher baut aus Journal-Ranking-Dateien einen ISSN-Index und
// hängt Publikationen die Kategorien ihres Journals an.
type CategoryEnricher struct {
	Logger *zap.Logger
	index  map[string]*Journal
}

// NewCategoryEnricher erstellt einen Anreicherer mit leerem Index.
func NewCategoryEnricher(logger *zap.Logger) *CategoryEnricher {
	return &CategoryEnricher{
		Logger: logger,
		index:  make(map[string]*Journal),
	}
}

// LoadDir lädt alle CSV-Dateien des Verzeichnisses in den Index. Einzelne
// unlesbare Dateien werden übersprungen; ein fehlendes Verzeichnis lässt
// den Index schlicht leer.
func (e *CategoryEnricher) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := e.LoadFile(file); err != nil {
			e.Logger.Warn("Ranking-Datei übersprungen", zap.String("file", file), zap.Error(err))
		}
	}
	return nil
}

// LoadFile liest eine einzelne Ranking-Datei ein.
func (e *CategoryEnricher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.Load(f, filepath.Base(path))
}

// Load parst eine Ranking-Datei: Semikolon-getrennt mit Kopfzeile, die
// ISSN-Spalte darf mehrere Komma-getrennte Werte enthalten, die
// Categories-Spalte listet "Name (Qn)"-Einträge mit Semikolon getrennt.
// Einträge werden über Dateien hinweg gesammelt, gleiche
// (Name, Quartil)-Paare derselben ISSN nur einmal gezählt.
func (e *CategoryEnricher) Load(r io.Reader, name string) error {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("kopfzeile lesen: %w", err)
	}

	issnCol, catCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "issn":
			issnCol = i
		case "categories":
			catCol = i
		}
	}
	if issnCol < 0 || catCol < 0 {
		return fmt.Errorf("%s: Spalten Issn/Categories nicht gefunden", name)
	}

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.Logger.Warn("Ranking-Zeile nicht lesbar", zap.String("file", name), zap.Error(err))
			continue
		}
		if issnCol >= len(record) || catCol >= len(record) {
			continue
		}

		ratings := parseCategories(record[catCol])
		if len(ratings) == 0 {
			continue
		}
		for _, rawIssn := range strings.Split(record[issnCol], ",") {
			issn := providers.NormalizeISSN(rawIssn)
			if issn == "" || issn == "-" {
				continue
			}
			e.add(issn, ratings)
		}
		rows++
	}

	e.Logger.Info("Ranking-Datei geladen",
		zap.String("file", name), zap.Int("rows", rows), zap.Int("journals", len(e.index)))
	return nil
}

// Journals gibt die Anzahl der indexierten ISSNs zurück.
func (e *CategoryEnricher) Journals() int {
	return len(e.index)
}

// Enrich hängt jeder Publikation mit bekannter ISSN die Kategorie-Einträge
// ihres Journals an. Eine Kategorie, die bereits unter ihrem Namen an der
// Publikation hängt, wird nicht erneut angehängt; führt der Index dieselbe
// Kategorie mit mehreren Quartilen, gewinnt deshalb der zuerst gesehene
// Eintrag. Publikationen ohne ISSN oder ohne Index-Treffer bleiben ohne
// Kategorien.
func (e *CategoryEnricher) Enrich(pubs []*models.Publication) {
	if len(e.index) == 0 {
		return
	}

	matched := 0
	for _, pub := range pubs {
		issn := strings.TrimSpace(pub.ISSN)
		if issn == "" {
			continue
		}
		journal, ok := e.index[strings.ToLower(issn)]
		if !ok {
			continue
		}

		for _, rating := range journal.Categories {
			if hasCategoryName(pub.Categories, rating.Name) {
				continue
			}
			pub.Categories = append(pub.Categories, models.PublicationCategory{
				Category: models.Category{CategoryName: rating.Name},
				Quartile: rating.Quartile,
			})
		}
		matched++
	}
	e.Logger.Debug("Kategorien angereichert", zap.Int("matched", matched))
}

func (e *CategoryEnricher) add(issn string, ratings []CategoryRating) {
	key := strings.ToLower(issn)
	journal, ok := e.index[key]
	if !ok {
		journal = &Journal{ISSN: issn}
		e.index[key] = journal
	}

outer:
	for _, rating := range ratings {
		for _, existing := range journal.Categories {
			if strings.EqualFold(existing.Name, rating.Name) && existing.Quartile == rating.Quartile {
				continue outer
			}
		}
		journal.Categories = append(journal.Categories, rating)
	}
}

// parseCategories zerlegt die Categories-Spalte in (Name, Quartil)-Paare.
func parseCategories(raw string) []CategoryRating {
	var out []CategoryRating
	for _, token := range strings.Split(raw, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		m := categoryPattern.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		out = append(out, CategoryRating{Name: strings.TrimSpace(m[1]), Quartile: m[2]})
	}
	return out
}

func hasCategoryName(categories []models.PublicationCategory, name string) bool {
	for _, c := range categories {
		if strings.EqualFold(c.Category.CategoryName, name) {
			return true
		}
	}
	return false
}
