package pgstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/glossary/internal/id"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/telemetry"
)

func TestSelectEventsNumbersArguments(t *testing.T) {
	found := false
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sql, args := selectEvents(telemetry.Query{
		Since:     since,
		Types:     []telemetry.InteractionType{telemetry.InteractionSearch},
		UserID:    "u1",
		FoundOnly: &found,
		Limit:     10,
	})

	assert.Contains(t, sql, "created_at >= $1")
	assert.Contains(t, sql, "interaction_type = ANY($2)")
	assert.Contains(t, sql, "user_id = $3")
	assert.Contains(t, sql, "metadata->'found' = to_jsonb($4::boolean)")
	assert.NotContains(t, sql, "::boolean =", "a text cast fails on non-boolean metadata")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY created_at, id LIMIT $5"))
	assert.Equal(t, []any{since, []string{"search"}, "u1", false, 10}, args)
}

func TestSelectEventsWithoutFilters(t *testing.T) {
	sql, args := selectEvents(telemetry.Query{})
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)
}

// openTestStore connects to GLOSSARY_TEST_DATABASE_URL, a disposable database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GLOSSARY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GLOSSARY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, "TRUNCATE glossary_interactions, glossary_terms")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStoreRoundTripsEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	crown := "crown"

	require.NoError(t, s.Append(ctx, telemetry.Event{ID: id.New(), TermID: &crown, Term: "Crown", SessionID: "s1",
		Type: telemetry.InteractionView, Timestamp: base}))
	require.NoError(t, s.Append(ctx, telemetry.Event{ID: id.New(), SessionID: "s1", Type: telemetry.InteractionSearch,
		Metadata: map[string]any{telemetry.MetaSearchedTerm: "veneer", telemetry.MetaFound: false}, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.Append(ctx, telemetry.Event{ID: id.New(), TermID: &crown, SessionID: "s2",
		Type: telemetry.InteractionView, Timestamp: base.Add(-48 * time.Hour)}))
	require.NoError(t, s.Append(ctx, telemetry.Event{ID: id.New(), TermID: &crown, SessionID: "s3",
		Type: telemetry.InteractionCopy, Metadata: map[string]any{telemetry.MetaFound: "maybe"}, Timestamp: base.Add(-72 * time.Hour)}))

	events, err := s.Query(ctx, telemetry.Query{Since: base.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "crown", *events[0].TermID)
	assert.Nil(t, events[1].TermID)
	assert.Equal(t, "veneer", events[1].SearchedTerm())

	notFound := false
	events, err = s.Query(ctx, telemetry.Query{FoundOnly: &notFound})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(base.Add(time.Minute)))
}

func TestStoreTerms(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTerms(ctx, []dictionary.Term{
		{ID: "bruxism", Term: "Bruxism", Definition: "Grinding.", Aliases: []string{"teeth grinding"}},
		{ID: "crown", Term: "Crown", Definition: "A cap."},
	})
	require.NoError(t, err)
	_, err = s.UpsertTerms(ctx, []dictionary.Term{{ID: "bruxism", Term: "Bruxism", Definition: "Clenching."}})
	require.NoError(t, err)

	terms, err := s.ListTerms(ctx)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "bruxism", terms[0].ID)
	assert.Equal(t, "Clenching.", terms[0].Definition)
	assert.Empty(t, terms[0].Aliases)
}
