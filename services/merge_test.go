package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trawl/models"
	"paper-trawl/providers"
)

func pub(doi, title, abstract string, authors ...string) *models.Publication {
	p := &models.Publication{
		DOI:      providers.DOIPtr(doi),
		Title:    title,
		Abstract: abstract,
	}
	for _, name := range authors {
		p.Authors = append(p.Authors, models.Author{Name: name})
	}
	return p
}

func category(name, quartile string) models.PublicationCategory {
	return models.PublicationCategory{
		Category: models.Category{CategoryName: name},
		Quartile: quartile,
	}
}

func TestMergeFirstNonBlankWins(t *testing.T) {
	a := pub("10.1/X", "T1", "", "Jane Doe")
	b := pub("10.1/x", "T2", "A", "John Roe")

	merged := MergePublications([]*models.Publication{a, b})
	require.Len(t, merged, 1)

	// Der kanonische Titel bleibt, das fehlende Abstract kommt dazu.
	assert.Equal(t, "T1", merged[0].Title)
	assert.Equal(t, "A", merged[0].Abstract)

	// Autoren beider Treffer werden vereinigt.
	require.Len(t, merged[0].Authors, 2)
	assert.Equal(t, "Jane Doe", merged[0].Authors[0].Name)
	assert.Equal(t, "John Roe", merged[0].Authors[1].Name)
}

func TestMergeDropsBlankDOI(t *testing.T) {
	merged := MergePublications([]*models.Publication{
		pub("", "Ohne DOI", "A", "Jane Doe"),
		pub("10.1/y", "Mit DOI", "B", "John Roe"),
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "Mit DOI", merged[0].Title)
}

func TestMergeAuthorUnionIsCaseInsensitive(t *testing.T) {
	a := pub("10.1/z", "T", "A", "Jane Doe")
	b := pub("10.1/Z", "T", "A", "JANE DOE", "John Roe")

	merged := MergePublications([]*models.Publication{a, b})
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Authors, 2)
}

func TestMergeKeepsBothQuartilesOfSameCategory(t *testing.T) {
	a := pub("10.1/q", "T", "A", "Jane Doe")
	a.Categories = []models.PublicationCategory{category("Biology", "Q1")}
	b := pub("10.1/q", "T", "A")
	b.Categories = []models.PublicationCategory{category("Biology", "Q2"), category("Biology", "Q1")}

	merged := MergePublications([]*models.Publication{a, b})
	require.Len(t, merged, 1)

	// Gleiches Paar nur einmal, anderes Quartil derselben Kategorie bleibt.
	require.Len(t, merged[0].Categories, 2)
	assert.Equal(t, "Q1", merged[0].Categories[0].Quartile)
	assert.Equal(t, "Q2", merged[0].Categories[1].Quartile)
}

func TestMergePortalAdoptedWhenCanonicalBlank(t *testing.T) {
	a := pub("10.1/p", "T", "A")
	b := pub("10.1/p", "T", "A")
	b.Portal = &models.Portal{Description: "PubMed"}

	merged := MergePublications([]*models.Publication{a, b})
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Portal)
	assert.Equal(t, "PubMed", merged[0].Portal.Description)

	// Ein gesetztes Portal wird nicht überschrieben.
	c := pub("10.1/p2", "T", "A")
	c.Portal = &models.Portal{Description: "ArXiv"}
	d := pub("10.1/p2", "T", "A")
	d.Portal = &models.Portal{Description: "Zenodo"}
	merged = MergePublications([]*models.Publication{c, d})
	assert.Equal(t, "ArXiv", merged[0].Portal.Description)
}

func TestMergeFillsDateParts(t *testing.T) {
	a := pub("10.1/d", "T", "A")
	a.PublicationYear = providers.IntPtr(2021)
	b := pub("10.1/d", "T", "A")
	b.PublicationYear = providers.IntPtr(1999)
	b.PublicationMonth = providers.IntPtr(5)

	merged := MergePublications([]*models.Publication{a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, 2021, *merged[0].PublicationYear)
	assert.Equal(t, 5, *merged[0].PublicationMonth)
	assert.Nil(t, merged[0].PublicationDay)
}

func TestMergeIdempotent(t *testing.T) {
	input := []*models.Publication{
		pub("10.1/X", "T1", "", "Jane Doe"),
		pub("10.1/x", "T2", "A", "John Roe"),
		pub("10.2/y", "Anderes", "B", "Max Muster"),
	}

	once := MergePublications(input)
	twice := MergePublications(once)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].DOIValue(), twice[i].DOIValue())
		assert.Equal(t, once[i].Title, twice[i].Title)
		assert.Equal(t, once[i].Abstract, twice[i].Abstract)
		assert.Len(t, twice[i].Authors, len(once[i].Authors))
	}
}

func TestCleanRemovesAbstractlessAndAuthorless(t *testing.T) {
	withAll := pub("10.1/a", "T", "Abstract", "Jane Doe")
	noAbstract := pub("10.1/b", "T", "   ", "Jane Doe")
	noAuthors := pub("10.1/c", "T", "Abstract")
	blankAuthor := pub("10.1/d", "T", "Abstract", "   ")

	cleaned := CleanPublications([]*models.Publication{withAll, noAbstract, noAuthors, blankAuthor})
	require.Len(t, cleaned, 1)
	assert.Equal(t, "10.1/a", cleaned[0].DOIValue())
}
