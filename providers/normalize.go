package providers

import (
	"strconv"
	"strings"

	"paper-trawl/models"
)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// NormalizeISSN bringt eine ISSN in die kanonische Form NNNN-NNNN. Enthält
// die Eingabe nicht genau acht Ziffern, kommt sie getrimmt, ohne Leerzeichen
// und in Großbuchstaben zurück.
func NormalizeISSN(raw string) string {
	trimmed := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 8 {
		d := digits.String()
		return d[:4] + "-" + d[4:]
	}
	return trimmed
}

// MonthNumber interpretiert Monatsangaben als Zahl oder englischen Namen
// ("3", "03", "Mar", "March"). Bereiche wie "Jan-Feb" zählen als erster
// Monat. Unbekanntes ergibt nil.
func MonthNumber(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return &n
		}
		return nil
	}
	if n, ok := monthNames[s]; ok {
		return IntPtr(n)
	}
	if i := strings.IndexAny(s, "-/"); i > 0 {
		return MonthNumber(s[:i])
	}
	return nil
}

// SplitDate zerlegt ein Datum der Form YYYY[-MM[-DD]] in seine Teile.
// Fehlende oder unplausible Teile bleiben nil.
func SplitDate(s string) (year, month, day *int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	parts := strings.Split(s, "-")
	if y, err := strconv.Atoi(parts[0]); err == nil && y > 0 {
		year = &y
	}
	if len(parts) > 1 {
		month = MonthNumber(parts[1])
	}
	if len(parts) > 2 {
		if d, err := strconv.Atoi(parts[2]); err == nil && d >= 1 && d <= 31 {
			day = &d
		}
	}
	return year, month, day
}

// IntPtr liefert einen Zeiger auf den Wert.
func IntPtr(v int) *int {
	return &v
}

// DOIPtr trimmt die DOI und liefert nil bei leerer Eingabe, damit in der
// Datenbank NULL statt Leerstring landet.
func DOIPtr(doi string) *string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return nil
	}
	return &doi
}

// AppendAuthor fügt einen Autor an, sofern der Name (ohne Beachtung von
// Groß-/Kleinschreibung) nicht schon enthalten ist.
func AppendAuthor(authors []models.Author, seen map[string]struct{}, name string) []models.Author {
	name = strings.TrimSpace(name)
	if name == "" {
		return authors
	}
	key := strings.ToLower(name)
	if _, ok := seen[key]; ok {
		return authors
	}
	seen[key] = struct{}{}
	return append(authors, models.Author{Name: name})
}
