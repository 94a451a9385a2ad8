package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/telemetry"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	t     *testing.T
	store *telemetry.MemoryStore
	clock time.Time
}

func newEventLog(t *testing.T) *eventLog {
	return &eventLog{t: t, store: telemetry.NewMemoryStore(), clock: now.Add(-24 * time.Hour)}
}

// add appends n events of typ for termID, each a minute after the previous one.
func (l *eventLog) add(termID string, typ telemetry.InteractionType, n int) {
	l.t.Helper()
	for i := 0; i < n; i++ {
		l.clock = l.clock.Add(time.Minute)
		e := telemetry.Event{Type: typ, SessionID: "s1", Timestamp: l.clock}
		if termID != "" {
			id := termID
			e.TermID = &id
		}
		require.NoError(l.t, l.store.Append(context.Background(), e))
	}
}

func (l *eventLog) search(text string, found *bool) {
	l.t.Helper()
	l.clock = l.clock.Add(time.Minute)
	meta := map[string]any{telemetry.MetaSearchedTerm: text}
	if found != nil {
		meta[telemetry.MetaFound] = *found
	}
	require.NoError(l.t, l.store.Append(context.Background(), telemetry.Event{
		Type: telemetry.InteractionSearch, SessionID: "s1", Timestamp: l.clock, Metadata: meta,
	}))
}

func catalog() *dictionary.Dictionary {
	return dictionary.Build([]dictionary.Term{
		{ID: "a", Term: "Implant", Definition: "d", Category: "restorative"},
		{ID: "b", Term: "Crown", Definition: "d", Category: "restorative"},
		{ID: "c", Term: "Plaque", Definition: "d", Category: "hygiene"},
		{ID: "d", Term: "Veneer", Definition: "d"},
	}, dictionary.BuildOptions{})
}

func ids(scores []TrendingScore) []string {
	out := make([]string, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.TermID)
	}
	return out
}

type failingStore struct{}

func (failingStore) Append(context.Context, telemetry.Event) error { return errors.New("down") }
func (failingStore) Query(context.Context, telemetry.Query) ([]telemetry.Event, error) {
	return nil, errors.New("connection refused")
}

func TestTrendingTieKeepsFirstAppearance(t *testing.T) {
	l := newEventLog(t)
	l.add("a", telemetry.InteractionView, 5)
	l.add("b", telemetry.InteractionView, 2)
	l.add("c", telemetry.InteractionSearch, 3)
	l.add("b", telemetry.InteractionSearch, 1)

	agg := NewAggregator(l.store, Options{Fallback: []string{"d"}, Terms: catalog()})
	got, err := agg.Trending(context.Background(), LastDays(now, 7), 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, 5.0, got[0].Score)
	assert.Equal(t, "Implant", got[0].Term)
	assert.Equal(t, map[telemetry.InteractionType]int{telemetry.InteractionView: 2, telemetry.InteractionSearch: 1}, got[1].Counts)
	for _, s := range got {
		assert.False(t, s.Fallback)
	}
}

func TestTrendingPadsFromFallback(t *testing.T) {
	l := newEventLog(t)
	l.add("a", telemetry.InteractionView, 2)

	agg := NewAggregator(l.store, Options{Fallback: []string{"a", "missing", "d", "c"}, Terms: catalog()})
	got, err := agg.Trending(context.Background(), LastDays(now, 7), 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "d", "c"}, ids(got))
	assert.False(t, got[0].Fallback)
	assert.True(t, got[1].Fallback)
	assert.Equal(t, "Veneer", got[1].Term)
	assert.Zero(t, got[1].Score)
}

func TestTrendingRespectsWindowAndWeights(t *testing.T) {
	l := newEventLog(t)
	l.add("a", telemetry.InteractionView, 1)
	cutoff := l.clock.Add(30 * time.Second)
	l.add("b", telemetry.InteractionCopy, 4)
	l.add("c", telemetry.InteractionView, 1)
	l.add("", telemetry.InteractionSearch, 3)

	agg := NewAggregator(l.store, Options{})
	got, err := agg.Trending(context.Background(), Window{Since: cutoff}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got), "copies weigh nothing by default")

	agg = NewAggregator(l.store, Options{Weights: Weights{telemetry.InteractionCopy: 0.5, telemetry.InteractionView: 1}})
	got, err = agg.Trending(context.Background(), Window{Since: cutoff}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))
	assert.Equal(t, 2.0, got[0].Score)
}

func TestTrendingNonPositiveLimit(t *testing.T) {
	agg := NewAggregator(failingStore{}, Options{Fallback: []string{"d"}})
	got, err := agg.Trending(context.Background(), Window{}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrendingStoreFailure(t *testing.T) {
	agg := NewAggregator(failingStore{}, Options{})
	_, err := agg.Trending(context.Background(), LastDays(now, 7), 5)

	var unavailable *AggregationUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "trending", unavailable.Op)
	assert.EqualError(t, unavailable.Unwrap(), "connection refused")
}

func TestSearchReport(t *testing.T) {
	yes, no := true, false
	l := newEventLog(t)
	l.search("veneer", &no)
	l.search("crown", &yes)
	l.search("Veneer", &no)
	l.search("Crown", nil)
	l.search("floss", &no)
	l.search("  ", &no)

	agg := NewAggregator(l.store, Options{})
	report, err := agg.SearchReport(context.Background(), Window{}, 1)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, []SearchCount{{Term: "crown", Count: 2}}, report.Found)
	assert.Equal(t, []SearchCount{{Term: "veneer", Count: 2}}, report.NotFound)
}

func TestTermStatsAndCategories(t *testing.T) {
	l := newEventLog(t)
	l.add("c", telemetry.InteractionView, 1)
	l.add("a", telemetry.InteractionView, 3)
	l.add("a", telemetry.InteractionCopy, 1)
	l.add("b", telemetry.InteractionView, 2)
	l.add("d", telemetry.InteractionView, 1)
	l.add("b", telemetry.InteractionBookmark, 1)
	l.add("d", telemetry.InteractionYouTube, 2)

	agg := NewAggregator(l.store, Options{Terms: catalog()})
	stats, err := agg.TermStats(context.Background(), Window{}, 2)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, TermActivity{TermID: "a", Term: "Implant", Category: "restorative", Views: 3, Copies: 1}, stats[0])
	assert.Equal(t, "b", stats[1].TermID)
	assert.Equal(t, 1, stats[1].Bookmark)

	cats, err := agg.CategoryBreakdown(context.Background(), Window{})
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{Category: "restorative", Views: 5},
		{Category: "hygiene", Views: 1},
		{Category: UncategorizedLabel, Views: 1},
	}, cats)
}

func TestUserQuizStatsFromStore(t *testing.T) {
	store := telemetry.NewMemoryStore()
	ctx := context.Background()
	a := "a"
	require.NoError(t, store.Append(ctx, telemetry.Event{TermID: &a, UserID: "u1", SessionID: "q1",
		Type: telemetry.InteractionQuizAttempt, Correct: true, ResponseTimeMs: 1200, Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, telemetry.Event{TermID: &a, UserID: "u2", SessionID: "q2",
		Type: telemetry.InteractionQuizAttempt, Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, telemetry.Event{TermID: &a, UserID: "u1", SessionID: "s1",
		Type: telemetry.InteractionView, Timestamp: now.Add(-time.Hour)}))

	agg := NewAggregator(store, Options{Terms: catalog(), Now: func() time.Time { return now }})
	stats, err := agg.UserQuizStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 100.0, stats.AccuracyPercentage)
	assert.True(t, stats.PracticedToday)
	require.Len(t, stats.RecentAttempts, 1)
	assert.Equal(t, "Implant", stats.RecentAttempts[0].Term)

	summary, err := agg.UserSummary(ctx, "u1", LastDays(now, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalInteractions)
	assert.Equal(t, 1, summary.DaysPracticed)

	_, err = NewAggregator(failingStore{}, Options{}).UserQuizStats(ctx, "u1")
	var unavailable *AggregationUnavailable
	assert.True(t, errors.As(err, &unavailable))
}

func TestParseTimeframe(t *testing.T) {
	w, err := ParseTimeframe("30d", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -30), w.Since)
	assert.Equal(t, now, w.Until)

	w, err = ParseTimeframe("", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), w.Since)

	w, err = ParseTimeframe("ALL", now)
	require.NoError(t, err)
	assert.True(t, w.Since.IsZero())
	assert.Equal(t, now, w.Until)

	for _, bad := range []string{"7", "d", "-3d", "week"} {
		_, err := ParseTimeframe(bad, now)
		assert.Error(t, err, bad)
	}
}
