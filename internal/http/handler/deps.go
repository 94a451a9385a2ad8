package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/pkg/analytics"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/index"
	"github.com/japaniel/glossary/pkg/search"
	"github.com/japaniel/glossary/pkg/telemetry"
)

type Recorder interface {
	RecordInteraction(ctx context.Context, termName string, typ telemetry.InteractionType, sessionID, userID string, metadata map[string]any)
	RecordQuizAttempt(ctx context.Context, a telemetry.QuizAttempt)
}

type TermResolver interface {
	Lookup(name string) (dictionary.Term, bool)
	ByID(id string) (dictionary.Term, bool)
}

type Analytics interface {
	Now() time.Time
	Trending(ctx context.Context, w analytics.Window, limit int) ([]analytics.TrendingScore, error)
	SearchReport(ctx context.Context, w analytics.Window, limit int) (analytics.SearchReport, error)
	TermStats(ctx context.Context, w analytics.Window, limit int) ([]analytics.TermActivity, error)
	CategoryBreakdown(ctx context.Context, w analytics.Window) ([]analytics.CategoryCount, error)
	UserQuizStats(ctx context.Context, userID string) (analytics.QuizStats, error)
	UserSummary(ctx context.Context, userID string, w analytics.Window) (analytics.UserSummary, error)
}

type TermSearcher interface {
	Search(ctx context.Context, text string, limit int) ([]search.Hit, error)
}

type SnapshotLoader interface {
	Load() *index.Snapshot
}

// aggregationStatus maps an analytics error onto a response status.
func aggregationStatus(err error) int {
	var unavailable *analytics.AggregationUnavailable
	if errors.As(err, &unavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortAggregation(c *gin.Context, err error, msg string) {
	c.JSON(aggregationStatus(err), gin.H{"error": msg})
}
