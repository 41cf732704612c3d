package scopus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-trawl/config"
	"paper-trawl/providers"
)

const searchPage = `{
  "search-results": {
    "opensearch:totalResults": "3",
    "entry": [
      {
        "dc:identifier": "SCOPUS_ID:85001",
        "dc:title": "Deep biosphere energetics",
        "prism:doi": "10.2000/scopus.demo",
        "prism:issn": "00280836",
        "prism:pageRange": "12-19",
        "prism:coverDate": "2022-07-01"
      },
      {
        "dc:identifier": "SCOPUS_ID:85002",
        "dc:title": "Zweiter Treffer",
        "prism:eIssn": "1546-1696"
      }
    ]
  }
}`

const searchPageShort = `{
  "search-results": {
    "opensearch:totalResults": "3",
    "entry": [
      {
        "dc:identifier": "SCOPUS_ID:85003",
        "dc:title": "Dritter Treffer"
      }
    ]
  }
}`

const emptyPage = `{
  "search-results": {
    "opensearch:totalResults": "0",
    "entry": [ { "error": "Result set was empty" } ]
  }
}`

func abstractJSON(given, surname, coverDate string) string {
	return fmt.Sprintf(`{
  "abstracts-retrieval-response": {
    "coredata": { "prism:coverDate": %q, "dc:description": "Nachgeladenes Abstract." },
    "authors": { "author": [
      { "ce:indexed-name": "%s %s.", "preferred-name": { "ce:given-name": %q, "ce:surname": %q } },
      { "preferred-name": { "ce:given-name": %q, "ce:surname": %q } }
    ] }
  }
}`, coverDate, surname, given[:1], given, surname, given, surname)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		ScopusBaseURL:   baseURL,
		ScopusAPIKey:    "test-key",
		ScopusInstToken: "test-token",
		ScopusPageSize:  2,
		MaxRecords:      10,
	}
}

func newTestServer(t *testing.T, detailIDs *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-ELS-APIKey"))
		assert.Equal(t, "test-token", r.Header.Get("X-ELS-Insttoken"))

		switch {
		case r.URL.Path == "/content/search/scopus":
			if r.URL.Query().Get("start") == "0" {
				fmt.Fprint(w, searchPage)
			} else {
				fmt.Fprint(w, searchPageShort)
			}
		case strings.HasPrefix(r.URL.Path, "/content/abstract/scopus_id/"):
			id := strings.TrimPrefix(r.URL.Path, "/content/abstract/scopus_id/")
			if detailIDs != nil {
				*detailIDs = append(*detailIDs, id)
			}
			fmt.Fprint(w, abstractJSON("Jane", "Doe", "2021-03-04"))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSearchPagesAndAttachesDetails(t *testing.T) {
	var detailIDs []string
	srv := newTestServer(t, &detailIDs)
	defer srv.Close()

	f, err := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil)
	require.NoError(t, err)

	pubs, err := f.Search(context.Background(), providers.Request{Query: "biosphere"})
	require.NoError(t, err)
	require.Len(t, pubs, 3)

	// Pro Treffer ein Detail-Abruf.
	assert.Equal(t, []string{"85001", "85002", "85003"}, detailIDs)

	p := pubs[0]
	assert.Equal(t, "Deep biosphere energetics", p.Title)
	require.NotNil(t, p.DOI)
	assert.Equal(t, "10.2000/scopus.demo", *p.DOI)
	assert.Equal(t, "0028-0836", p.ISSN)
	assert.Equal(t, "12-19", p.Pages)
	require.NotNil(t, p.Portal)
	assert.Equal(t, PortalName, p.Portal.Description)

	// Datum kommt aus dem Suchergebnis, nicht aus dem Detail-Abruf.
	require.NotNil(t, p.PublicationYear)
	assert.Equal(t, 2022, *p.PublicationYear)
	assert.Equal(t, 7, *p.PublicationMonth)

	// Autoren aus dem Detail-Abruf, dedupliziert über den Anzeigenamen.
	require.Len(t, p.Authors, 1)
	assert.Equal(t, "Jane Doe", p.Authors[0].Name)

	// Abstract wird nachgeladen, wenn die Suche keines lieferte.
	assert.Equal(t, "Nachgeladenes Abstract.", p.Abstract)

	// Ohne prism:issn greift die eISSN.
	assert.Equal(t, "1546-1696", pubs[1].ISSN)

	// Ohne Datum im Suchergebnis greift das Cover-Datum des Detail-Abrufs.
	require.NotNil(t, pubs[2].PublicationYear)
	assert.Equal(t, 2021, *pubs[2].PublicationYear)
	assert.Equal(t, 3, *pubs[2].PublicationMonth)
	assert.Equal(t, 4, *pubs[2].PublicationDay)
}

func TestSearchMinYearInQuery(t *testing.T) {
	var seenQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/content/search/scopus" {
			seenQuery = r.URL.Query().Get("query")
		}
		fmt.Fprint(w, emptyPage)
	}))
	defer srv.Close()

	f, err := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil)
	require.NoError(t, err)

	pubs, err := f.Search(context.Background(), providers.Request{Query: "biosphere", MinYear: 2020})
	require.NoError(t, err)
	assert.Empty(t, pubs)
	assert.Equal(t, "TITLE-ABS-KEY(biosphere) AND PUBYEAR > 2019", seenQuery)
}

func TestSearchEmptyResultSet(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, emptyPage)
	}))
	defer srv.Close()

	f, err := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil)
	require.NoError(t, err)

	pubs, err := f.Search(context.Background(), providers.Request{Query: "x"})
	require.NoError(t, err)
	assert.Empty(t, pubs)
	assert.Equal(t, 1, calls)
}

func TestSearchDetailFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/content/search/scopus":
			fmt.Fprint(w, searchPageShort)
		default:
			http.Error(w, "kaputt", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f, err := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil)
	require.NoError(t, err)

	pubs, err := f.Search(context.Background(), providers.Request{Query: "x"})
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "Dritter Treffer", pubs[0].Title)
	assert.Empty(t, pubs[0].Authors)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaputt", http.StatusUnauthorized)
	}))
	defer srv.Close()

	f, err := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = f.Search(context.Background(), providers.Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewFetcherRequiresAPIKey(t *testing.T) {
	_, err := NewFetcher(&config.Config{}, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCOPUS_API_KEY")
}

func TestScopusID(t *testing.T) {
	assert.Equal(t, "85001", scopusID("SCOPUS_ID:85001"))
	assert.Equal(t, "85001", scopusID(" 85001 "))
	assert.Equal(t, "", scopusID(""))
}
