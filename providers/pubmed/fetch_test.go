package pubmed

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

const articleXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>11</PMID>
      <Article>
        <ArticleTitle>Microbial dark matter</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Viel unbekanntes Leben.</AbstractText>
          <AbstractText Label="METHODS">Sequenzierung.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Doe</LastName><ForeName>Jane</ForeName><Initials>J</Initials></Author>
          <Author><LastName>DOE</LastName><ForeName>JANE</ForeName></Author>
          <Author><CollectiveName>Deep Carbon Consortium</CollectiveName></Author>
        </AuthorList>
        <Journal>
          <ISSN IssnType="Print">00280836</ISSN>
          <JournalIssue><PubDate><Year>2021</Year><Month>Mar</Month><Day>4</Day></PubDate></JournalIssue>
        </Journal>
        <Pagination><MedlinePgn>123-130</MedlinePgn></Pagination>
        <ELocationID EIdType="doi" ValidYN="Y">10.1000/xyz</ELocationID>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">11</ArticleId>
        <ArticleId IdType="pmc">PMC777</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

type stubPDF struct {
	landingPage string
}

func (s *stubPDF) FetchByURL(ctx context.Context, url string) (*providers.PDFDocument, error) {
	return &providers.PDFDocument{URL: url, Text: "volltext"}, nil
}

func (s *stubPDF) FetchByLandingPage(ctx context.Context, page string) (*providers.PDFDocument, error) {
	s.landingPage = page
	return &providers.PDFDocument{URL: page + "article.pdf", Text: "volltext", Pages: 2}, nil
}

func newTestServer(t *testing.T, efetchSeen *string, minDateSeen *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/esearch.fcgi"):
			if minDateSeen != nil {
				*minDateSeen = r.URL.Query().Get("mindate")
			}
			if r.URL.Query().Get("retstart") == "0" {
				fmt.Fprint(w, `{"esearchresult":{"idlist":["11","22"]}}`)
			} else {
				fmt.Fprint(w, `{"esearchresult":{"idlist":["33"]}}`)
			}
		case strings.HasPrefix(r.URL.Path, "/efetch.fcgi"):
			if efetchSeen != nil {
				*efetchSeen = r.URL.Query().Get("id")
			}
			fmt.Fprint(w, articleXML)
		default:
			http.NotFound(w, r)
		}
	}))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		PubMedBaseURL:  baseURL,
		PubMedPageSize: 2,
		MaxRecords:     10,
	}
}

func TestSearchPagesAndMaps(t *testing.T) {
	var efetchIDs, minDate string
	srv := newTestServer(t, &efetchIDs, &minDate)
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil, nil)
	pubs, err := f.Search(context.Background(), providers.Request{Query: "deep biosphere", MinYear: 2019})
	require.NoError(t, err)

	// Zwei ESearch-Seiten (2 + 1 IDs), ein EFetch-Batch.
	assert.Equal(t, "11,22,33", efetchIDs)
	assert.Equal(t, "2019", minDate)

	require.Len(t, pubs, 1)
	p := pubs[0]
	assert.Equal(t, "Microbial dark matter", p.Title)
	assert.Equal(t, "BACKGROUND: Viel unbekanntes Leben.\nMETHODS: Sequenzierung.", p.Abstract)
	require.NotNil(t, p.DOI)
	assert.Equal(t, "10.1000/xyz", *p.DOI)
	assert.Equal(t, "0028-0836", p.ISSN)
	assert.Equal(t, "123-130", p.Pages)
	require.NotNil(t, p.PublicationYear)
	assert.Equal(t, 2021, *p.PublicationYear)
	require.NotNil(t, p.PublicationMonth)
	assert.Equal(t, 3, *p.PublicationMonth)
	require.NotNil(t, p.PublicationDay)
	assert.Equal(t, 4, *p.PublicationDay)
	require.NotNil(t, p.Portal)
	assert.Equal(t, PortalName, p.Portal.Description)

	// Doppelte Autorennamen (unabhängig von Groß-/Kleinschreibung) fallen weg.
	require.Len(t, p.Authors, 2)
	assert.Equal(t, "Jane Doe", p.Authors[0].Name)
	assert.Equal(t, "Deep Carbon Consortium", p.Authors[1].Name)
}

func TestSearchFetchesPDFViaPMC(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()

	pdfStub := &stubPDF{}
	f := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil, pdfStub)
	pubs, err := f.Search(context.Background(), providers.Request{Query: "x", FetchPDF: true})
	require.NoError(t, err)
	require.Len(t, pubs, 1)

	assert.Contains(t, pdfStub.landingPage, "PMC777")
	assert.Equal(t, "volltext", pubs[0].PdfText)
	assert.NotEmpty(t, pubs[0].PdfUrl)
}

func TestSearchRespectsMaxRecords(t *testing.T) {
	var efetchIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/esearch.fcgi"):
			// Immer volle Seiten, die Begrenzung muss über MaxRecords greifen.
			fmt.Fprint(w, `{"esearchresult":{"idlist":["1","2"]}}`)
		case strings.HasPrefix(r.URL.Path, "/efetch.fcgi"):
			efetchIDs = r.URL.Query().Get("id")
			fmt.Fprint(w, `<?xml version="1.0"?><PubmedArticleSet></PubmedArticleSet>`)
		}
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil, nil)
	_, err := f.Search(context.Background(), providers.Request{Query: "x", MaxRecords: 3})
	require.NoError(t, err)
	assert.Equal(t, "1,2,1", efetchIDs)
}

func TestSearchCancelledContext(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil, nil)
	pubs, err := f.Search(ctx, providers.Request{Query: "x"})
	assert.NoError(t, err)
	assert.Empty(t, pubs)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaputt", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), zap.NewNop(), nil, nil)
	_, err := f.Search(context.Background(), providers.Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
