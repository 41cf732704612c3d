package pdftext

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeStats zählt, was die Normalisierung am Rohtext verändert hat.
type NormalizeStats struct {
	HyphenFixes    int
	HeadersRemoved int
	FootersRemoved int
}

// headerFooterShare ist der Anteil der Seiten, auf denen eine Kopf- oder
// Fußzeile wiederkehren muss, damit sie als Artefakt gilt.
const headerFooterShare = 0.6

var (
	// Worttrennung am Zeilenende: Bindestrich plus Umbruch vor einem
	// Kleinbuchstaben wird zusammengezogen ("ab-\nweichung" -> "abweichung").
	hyphenPattern = regexp.MustCompile(`(?m)([\p{L}\p{N}])-(?:\r?\n)([\p{Ll}])`)

	pageNumberPattern = regexp.MustCompile(`^(?:[Pp]age\s*|[Ss]eite\s*)?\d+(?:\s*/\s*\d+)?$`)

	blankPattern      = regexp.MustCompile("[\t\f\v ]+")
	multiSpacePattern = regexp.MustCompile(` {2,}`)
	multiLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// ligatureReplacer löst typografische Ligaturen auf, die PDF-Extraktoren
// als einzelne Zeichen liefern.
var ligatureReplacer = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬆ", "st",
)

// NormalizePages macht aus den Seitentexten einer PDF einen durchsuchbaren
// Volltext: Ligaturen und Unicode werden vereinheitlicht, Worttrennungen am
// Zeilenende zusammengezogen, wiederkehrende Kopf- und Fußzeilen sowie
// Seitenzahlen entfernt und überflüssiger Leerraum eingedampft.
func NormalizePages(pages []string) (string, NormalizeStats) {
	var stats NormalizeStats

	cleaned := make([]string, 0, len(pages))
	for _, raw := range pages {
		s := ligatureReplacer.Replace(raw)
		s, _, _ = transform.String(norm.NFC, s)

		matches := hyphenPattern.FindAllStringIndex(s, -1)
		stats.HyphenFixes += len(matches)
		s = hyphenPattern.ReplaceAllString(s, "$1$2")

		cleaned = append(cleaned, s)
	}

	headerCounts, footerCounts := countEdgeLines(cleaned)
	// Auf einer einzelnen Seite kann nichts wiederkehren; dort würde der
	// Schwellwert sonst den Titel wegfressen.
	threshold := int(math.Ceil(headerFooterShare * float64(len(cleaned))))
	if len(cleaned) < 2 {
		threshold = 2
	}

	joined := make([]string, 0, len(cleaned))
	for _, page := range cleaned {
		lines := splitLines(page)

		headerSet := edgeArtifacts(firstNonEmpty(lines, 3), headerCounts, threshold)
		footerSet := edgeArtifacts(lastNonEmpty(lines, 3), footerCounts, threshold)

		var kept []string
		for _, l := range lines {
			trimmed := strings.TrimSpace(l)
			if headerSet[trimmed] {
				stats.HeadersRemoved++
				continue
			}
			if footerSet[trimmed] {
				stats.FootersRemoved++
				continue
			}
			kept = append(kept, l)
		}

		text := collapseWhitespace(strings.Join(kept, "\n"))
		if text != "" {
			joined = append(joined, text)
		}
	}

	return strings.Join(joined, "\n\n"), stats
}

// countEdgeLines zählt über alle Seiten, wie oft eine Zeile unter den oberen
// bzw. unteren drei nicht-leeren Zeilen auftaucht.
func countEdgeLines(pages []string) (map[string]int, map[string]int) {
	headers := map[string]int{}
	footers := map[string]int{}
	for _, page := range pages {
		lines := splitLines(page)
		for _, l := range firstNonEmpty(lines, 3) {
			headers[strings.TrimSpace(l)]++
		}
		for _, l := range lastNonEmpty(lines, 3) {
			footers[strings.TrimSpace(l)]++
		}
	}
	return headers, footers
}

// edgeArtifacts bestimmt, welche der Randzeilen einer Seite entfernt werden:
// Zeilen, die auf genug Seiten wiederkehren, und nackte Seitenzahlen.
func edgeArtifacts(edge []string, counts map[string]int, threshold int) map[string]bool {
	set := map[string]bool{}
	for _, l := range edge {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if counts[trimmed] >= threshold || pageNumberPattern.MatchString(trimmed) {
			set[trimmed] = true
		}
	}
	return set
}

func collapseWhitespace(s string) string {
	s = blankPattern.ReplaceAllString(s, " ")
	s = multiSpacePattern.ReplaceAllString(s, " ")
	s = multiLinePattern.ReplaceAllString(s, "\n\n")

	lines := splitLines(s)
	for i := range lines {
		lines[i] = strings.TrimRightFunc(lines[i], unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func firstNonEmpty(lines []string, n int) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func lastNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		out = append(out, lines[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
