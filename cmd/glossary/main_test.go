package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/glossary/internal/config"
	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/db"
	"github.com/japaniel/glossary/pkg/htmltree"
	"github.com/japaniel/glossary/pkg/index"
	"github.com/japaniel/glossary/pkg/telemetry"
)

const termsJSON = `{"terms": [
	{"id": "bruxism", "term": "Bruxism", "definition": "Grinding or clenching of the teeth.", "aliases": ["teeth grinding"], "category": "conditions"},
	{"id": "crown", "term": "Crown", "definition": "A cap placed over a damaged tooth.", "category": "restorative"}
]}`

var articleHTML = `<!DOCTYPE html>
<html><head><title>Why You Wake Up Sore</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Why You Wake Up Sore</h1>
<p>` + strings.Repeat("Many people clench their jaw at night without noticing it. ", 6) + `Dentists call this bruxism and it often goes unnoticed for years.</p>
<p>` + strings.Repeat("Stress, sleep problems and some medicines make it worse. ", 6) + `A night guard protects each crown and the natural enamel around it.</p>
<p>` + strings.Repeat("Your dentist can spot worn edges during a routine visit. ", 6) + `Teeth grinding left untreated can crack fillings.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func writeTerms(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terms.json")
	require.NoError(t, os.WriteFile(path, []byte(termsJSON), 0o644))
	return path
}

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, store string) config.Config {
	t.Helper()
	return config.Config{
		Env:   "test",
		Store: store,
		SQLite: config.SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "glossary.db"),
		},
		Terms: config.TermsConfig{
			Path:            writeTerms(t),
			CollisionPolicy: "last-wins",
		},
		Trending:       config.TrendingConfig{Weights: map[string]float64{"view": 1, "search": 1}},
		ReportLocation: time.UTC,
	}
}

func TestFetchArticleExtractsContent(t *testing.T) {
	srv := articleServer(t)

	art, err := fetchArticle(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, art.Title, "Wake Up Sore")
	text := annotate.PlainText(art.Root)
	assert.Contains(t, text, "bruxism")
}

func TestFetchArticleRejectsBadResponses(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	_, err := fetchArticle(context.Background(), notFound.Client(), notFound.URL)
	assert.Error(t, err)

	huge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := []byte(strings.Repeat("a", 1024*1024))
		for i := 0; i < 11; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer huge.Close()
	_, err = fetchArticle(context.Background(), huge.Client(), huge.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestArticleDocumentsUnwrapsSingleContainers(t *testing.T) {
	p1 := &annotate.Element{Tag: "p", Children: []annotate.Node{&annotate.Text{Value: "one"}}}
	p2 := &annotate.Element{Tag: "p", Children: []annotate.Node{&annotate.Text{Value: "two"}}}
	root := &annotate.Fragment{Children: []annotate.Node{
		&annotate.Element{Tag: "div", Children: []annotate.Node{
			&annotate.Text{Value: "\n"},
			&annotate.Element{Tag: "div", Children: []annotate.Node{p1, &annotate.Text{Value: " "}, p2}},
		}},
	}}

	docs := articleDocuments(&article{Title: "T", Root: root})
	require.Len(t, docs, 2)
	assert.Same(t, annotate.Node(p1), docs[0].Root)
	assert.Same(t, annotate.Node(p2), docs[1].Root)
	assert.Equal(t, "T", docs[0].Title)

	docs = articleDocuments(&article{Root: &annotate.Fragment{Children: []annotate.Node{&annotate.Text{Value: "bare"}}}})
	assert.Len(t, docs, 1)
}

func TestSyncedSourceImportsFileIntoStore(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	path := writeTerms(t)
	src := syncedSource{file: index.FileSource{Path: path}, store: db.NewTermStore(conn)}

	terms, err := src.ListTerms(context.Background())
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "bruxism", terms[0].ID)

	// Without the file the stored terms are still served.
	require.NoError(t, os.Remove(path))
	terms, err = src.ListTerms(context.Background())
	require.NoError(t, err)
	assert.Len(t, terms, 2)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = src.ListTerms(context.Background())
	assert.Error(t, err)
}

func TestTrendingWeights(t *testing.T) {
	w, err := trendingWeights(map[string]float64{"View": 2, "copy": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2.0, w[telemetry.InteractionView])
	assert.Equal(t, 0.5, w[telemetry.InteractionCopy])

	w, err = trendingWeights(nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w[telemetry.InteractionSearch])

	_, err = trendingWeights(map[string]float64{"like": 1})
	assert.Error(t, err)
}

func TestAppServesLoadedTerms(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t, config.StoreMemory))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.health(context.Background()))
	assert.Equal(t, 2, a.searcher.Len())

	w := httptest.NewRecorder()
	newRouter(a).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/glossary/search?q=bruxim", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"term_id":"bruxism"`)
}

func TestAnnotateURLRecordsMentions(t *testing.T) {
	srv := articleServer(t)
	cfg := testConfig(t, config.StoreSQLite)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	out := filepath.Join(t.TempDir(), "article.html")
	require.NoError(t, annotateURL(context.Background(), a, srv.URL, out))

	rendered, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), htmltree.MarkerClass)

	mentions, err := db.GetMentionsByTerm(context.Background(), a.backend.sqlite, "bruxism", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, mentions)
}

func TestLostCommitsCountAsDropped(t *testing.T) {
	a := &app{recorder: telemetry.NewRecorder(telemetry.NewMemoryStore(), nil, telemetry.Config{})}
	defer a.recorder.Close()

	a.reportLostEvents(&db.CommitError{Writes: 4, Err: errors.New("disk I/O error")})
	a.reportLostEvents(errors.New("not a commit"))
	assert.Equal(t, uint64(4), a.recorder.Dropped())
}
