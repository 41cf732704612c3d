package services

import (
	"strings"

	"paper-trawl/models"
)

// MergePublications fasst die Treffer aller Quellen zu einem Eintrag pro DOI
// zusammen. Der erste Treffer einer DOI ist kanonisch; weitere Treffer füllen
// nur Felder auf, die beim kanonischen noch leer sind. Treffer ohne DOI
// fallen hier bewusst heraus, die Identität über den Titel bleibt dem
// Upserter als Rückfallebene vorbehalten. Die Reihenfolge des ersten
// Auftretens bleibt erhalten.
func MergePublications(pubs []*models.Publication) []*models.Publication {
	byDOI := make(map[string]*models.Publication)
	var order []*models.Publication

	for _, pub := range pubs {
		if pub == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(pub.DOIValue()))
		if key == "" {
			continue
		}

		canonical, ok := byDOI[key]
		if !ok {
			byDOI[key] = pub
			order = append(order, pub)
			continue
		}
		mergeInto(canonical, pub)
	}

	return order
}

// mergeInto übernimmt Felder aus incoming in den kanonischen Eintrag:
// Skalare nur, wenn sie dort leer sind; Autoren als Vereinigung über den
// Namen; Kategorien als Vereinigung über das Paar (Name, Quartil).
func mergeInto(canonical, incoming *models.Publication) {
	adoptString(&canonical.Title, incoming.Title)
	adoptString(&canonical.Abstract, incoming.Abstract)
	adoptString(&canonical.PdfUrl, incoming.PdfUrl)
	adoptString(&canonical.PdfText, incoming.PdfText)
	adoptString(&canonical.ISSN, incoming.ISSN)
	adoptString(&canonical.Pages, incoming.Pages)

	if canonical.PublicationYear == nil {
		canonical.PublicationYear = incoming.PublicationYear
	}
	if canonical.PublicationMonth == nil {
		canonical.PublicationMonth = incoming.PublicationMonth
	}
	if canonical.PublicationDay == nil {
		canonical.PublicationDay = incoming.PublicationDay
	}

	if canonical.Portal == nil || strings.TrimSpace(canonical.Portal.Description) == "" {
		canonical.Portal = incoming.Portal
		canonical.PortalID = incoming.PortalID
	}

	seenAuthors := make(map[string]struct{}, len(canonical.Authors))
	for _, a := range canonical.Authors {
		seenAuthors[authorKey(a.Name)] = struct{}{}
	}
	for _, a := range incoming.Authors {
		key := authorKey(a.Name)
		if _, ok := seenAuthors[key]; ok {
			continue
		}
		seenAuthors[key] = struct{}{}
		canonical.Authors = append(canonical.Authors, a)
	}

	seenCategories := make(map[[2]string]struct{}, len(canonical.Categories))
	for _, c := range canonical.Categories {
		seenCategories[categoryPairKey(c)] = struct{}{}
	}
	for _, c := range incoming.Categories {
		key := categoryPairKey(c)
		if _, ok := seenCategories[key]; ok {
			continue
		}
		seenCategories[key] = struct{}{}
		canonical.Categories = append(canonical.Categories, c)
	}
}

// CleanPublications ist das letzte Gatter vor der Anreicherung: Einträge
// ohne Abstract oder ohne mindestens einen benannten Autor fliegen raus.
func CleanPublications(pubs []*models.Publication) []*models.Publication {
	out := make([]*models.Publication, 0, len(pubs))
	for _, pub := range pubs {
		if strings.TrimSpace(pub.Abstract) == "" {
			continue
		}
		if !hasNamedAuthor(pub.Authors) {
			continue
		}
		out = append(out, pub)
	}
	return out
}

func hasNamedAuthor(authors []models.Author) bool {
	for _, a := range authors {
		if strings.TrimSpace(a.Name) != "" {
			return true
		}
	}
	return false
}

func adoptString(canonical *string, incoming string) {
	if strings.TrimSpace(*canonical) == "" && strings.TrimSpace(incoming) != "" {
		*canonical = incoming
	}
}

func authorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func categoryPairKey(c models.PublicationCategory) [2]string {
	return [2]string{strings.ToLower(strings.TrimSpace(c.Category.CategoryName)), c.Quartile}
}
