package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, Event{ID: 3, TermID: ptr("crown"), Type: InteractionView, Timestamp: base.Add(2 * time.Hour)}))
	require.NoError(t, s.Append(ctx, Event{ID: 1, TermID: ptr("crown"), Type: InteractionView, Timestamp: base}))
	require.NoError(t, s.Append(ctx, Event{ID: 2, Type: InteractionSearch, UserID: "u1", Timestamp: base.Add(time.Hour),
		Metadata: map[string]any{MetaSearchedTerm: "veneer", MetaFound: false}}))

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})

	windowed, err := s.Query(ctx, Query{Since: base.Add(time.Hour), Until: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, int64(2), windowed[0].ID)

	notFound, err := s.Query(ctx, Query{FoundOnly: ptr(false)})
	require.NoError(t, err)
	assert.Len(t, notFound, 1)

	byTerm, err := s.Query(ctx, Query{TermID: "crown", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byTerm, 1)
	assert.Equal(t, int64(1), byTerm[0].ID)

	byUser, err := s.Query(ctx, Query{UserID: "u1", Types: []InteractionType{InteractionSearch}})
	require.NoError(t, err)
	assert.Len(t, byUser, 1)
}
