package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-trawl/models"
)

const rankingCSV = `Rank;Title;Issn;Categories
1;CA - A Cancer Journal for Clinicians;"15424863, 00079235";"Hematology (Q1); Oncology (Q1)"
2;Cell;00928674;"Biochemistry, Genetics and Molecular Biology (miscellaneous) (Q1)"
3;Some Proceedings;-;"Engineering (Q1)"
4;Unranked Letters;12345678;Astronomy and Astrophysics
`

const secondRankingCSV = `Rank;Title;Issn;Categories
9;Cell;00928674;"Cell Biology (Q2); Biochemistry, Genetics and Molecular Biology (miscellaneous) (Q1)"
`

const quartileCSV = `Rank;Title;Issn;Categories
1;Journal of Biology;11112222;"Biology (Q1); Biology (Q2)"
`

func TestLoadBuildsIndex(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "test.csv"))

	// Zeile 3 hat keine ISSN, Zeile 4 kein Quartil: drei ISSNs bleiben.
	assert.Equal(t, 3, e.Journals())

	pub := &models.Publication{ISSN: "0007-9235"}
	e.Enrich([]*models.Publication{pub})
	require.Len(t, pub.Categories, 2)
	assert.Equal(t, "Hematology", pub.Categories[0].Category.CategoryName)
	assert.Equal(t, "Q1", pub.Categories[0].Quartile)
	assert.Equal(t, "Oncology", pub.Categories[1].Category.CategoryName)
	assert.Equal(t, "Q1", pub.Categories[1].Quartile)
}

func TestLoadKeepsParenthesesInCategoryName(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "test.csv"))

	pub := &models.Publication{ISSN: "0092-8674"}
	e.Enrich([]*models.Publication{pub})
	require.Len(t, pub.Categories, 1)
	assert.Equal(t, "Biochemistry, Genetics and Molecular Biology (miscellaneous)",
		pub.Categories[0].Category.CategoryName)
	assert.Equal(t, "Q1", pub.Categories[0].Quartile)
}

func TestLoadDiscardsTokensWithoutQuartile(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "test.csv"))

	pub := &models.Publication{ISSN: "1234-5678"}
	e.Enrich([]*models.Publication{pub})
	assert.Empty(t, pub.Categories)
}

func TestLoadAccumulatesAcrossFiles(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "first.csv"))
	require.NoError(t, e.Load(strings.NewReader(secondRankingCSV), "second.csv"))

	// Das identische (Name, Quartil)-Paar aus beiden Dateien zählt nur einmal.
	pub := &models.Publication{ISSN: "0092-8674"}
	e.Enrich([]*models.Publication{pub})
	require.Len(t, pub.Categories, 2)
	assert.Equal(t, "Biochemistry, Genetics and Molecular Biology (miscellaneous)",
		pub.Categories[0].Category.CategoryName)
	assert.Equal(t, "Cell Biology", pub.Categories[1].Category.CategoryName)
	assert.Equal(t, "Q2", pub.Categories[1].Quartile)
}

func TestEnrichFirstQuartileWins(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(quartileCSV), "test.csv"))

	// Der Index führt Biology mit Q1 und Q2; angehängt wird nur der erste
	// Eintrag, weil der Name danach schon vergeben ist.
	pub := &models.Publication{ISSN: "1111-2222"}
	e.Enrich([]*models.Publication{pub})
	require.Len(t, pub.Categories, 1)
	assert.Equal(t, "Biology", pub.Categories[0].Category.CategoryName)
	assert.Equal(t, "Q1", pub.Categories[0].Quartile)
}

func TestEnrichSkipsAttachedCategory(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "test.csv"))

	pub := &models.Publication{
		ISSN: "1542-4863",
		Categories: []models.PublicationCategory{
			{Category: models.Category{CategoryName: "hematology"}, Quartile: "Q3"},
		},
	}
	e.Enrich([]*models.Publication{pub})
	require.Len(t, pub.Categories, 2)
	assert.Equal(t, "hematology", pub.Categories[0].Category.CategoryName)
	assert.Equal(t, "Q3", pub.Categories[0].Quartile)
	assert.Equal(t, "Oncology", pub.Categories[1].Category.CategoryName)
}

func TestEnrichWithoutMatchLeavesPublication(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.Load(strings.NewReader(rankingCSV), "test.csv"))

	noISSN := &models.Publication{Title: "ohne ISSN"}
	unknown := &models.Publication{ISSN: "9999-9999"}
	e.Enrich([]*models.Publication{noISSN, unknown})
	assert.Empty(t, noISSN.Categories)
	assert.Empty(t, unknown.Categories)
}

func TestLoadRejectsMissingColumns(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	err := e.Load(strings.NewReader("Rank;Title\n1;Cell\n"), "broken.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Issn/Categories")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte(rankingCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte(quartileCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.csv"), []byte("foo;bar\n1;2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("kein csv"), 0o644))

	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.LoadDir(dir))
	assert.Equal(t, 4, e.Journals())
}

func TestLoadDirMissingDirectory(t *testing.T) {
	e := NewCategoryEnricher(zap.NewNop())
	require.NoError(t, e.LoadDir(filepath.Join(t.TempDir(), "gibt-es-nicht")))
	assert.Zero(t, e.Journals())
}
