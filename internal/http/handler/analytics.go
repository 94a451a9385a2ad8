package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/dto"
	"github.com/japaniel/glossary/internal/http/middleware"
	"github.com/japaniel/glossary/pkg/analytics"
)

const (
	defaultTrendingLimit = 10
	maxTrendingLimit     = 50
	defaultReportDays    = 30
	maxReportDays        = 365
	reportLimit          = 10
)

type AnalyticsHandler struct {
	analytics Analytics
	terms     TermResolver
}

func NewAnalyticsHandler(analytics Analytics, terms TermResolver) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, terms: terms}
}

// intQuery reads a positive integer parameter, clamped to max.
func intQuery(c *gin.Context, key string, def, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func (h *AnalyticsHandler) Trending(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := intQuery(c, "limit", defaultTrendingLimit, maxTrendingLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	timeframe := c.DefaultQuery("timeframe", analytics.DefaultTimeframe)
	window, err := analytics.ParseTimeframe(timeframe, h.analytics.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scores, err := h.analytics.Trending(ctx, window, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute trending terms", "error", err)
		abortAggregation(c, err, "trending terms unavailable")
		return
	}

	resp := dto.TrendingResponse{Terms: make([]dto.TrendingTerm, 0, len(scores)), Timeframe: timeframe}
	for _, s := range scores {
		term := dto.TrendingTerm{TrendingScore: s}
		if t, ok := h.terms.ByID(s.TermID); ok {
			term.Term = t.Term
			term.Definition = t.Definition
			term.Category = t.Category
			term.Difficulty = t.Difficulty
		}
		for _, n := range s.Counts {
			resp.TotalInteractions += n
		}
		resp.Terms = append(resp.Terms, term)
	}
	c.JSON(http.StatusOK, resp)
}

// Report returns the usage overview: most viewed terms, top searches, searches
// that found nothing, views per category and, for a signed-in user, their own summary.
func (h *AnalyticsHandler) Report(c *gin.Context) {
	ctx := c.Request.Context()

	days, ok := intQuery(c, "days", defaultReportDays, maxReportDays)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	window := analytics.LastDays(h.analytics.Now(), days)
	resp := dto.AnalyticsResponse{Window: window, Days: days}

	fail := func(err error) {
		slog.ErrorContext(ctx, "failed to build analytics report", "error", err)
		abortAggregation(c, err, "analytics unavailable")
	}

	mostViewed, err := h.analytics.TermStats(ctx, window, reportLimit)
	if err != nil {
		fail(err)
		return
	}
	if category := c.Query("category"); category != "" {
		filtered := mostViewed[:0]
		for _, t := range mostViewed {
			if t.Category == category {
				filtered = append(filtered, t)
			}
		}
		mostViewed = filtered
	}
	resp.MostViewed = mostViewed

	searches, err := h.analytics.SearchReport(ctx, window, reportLimit)
	if err != nil {
		fail(err)
		return
	}
	resp.TopSearches = searches.Found
	resp.TopNotFound = searches.NotFound

	if resp.CategoryStats, err = h.analytics.CategoryBreakdown(ctx, window); err != nil {
		fail(err)
		return
	}

	if userID := middleware.UserID(c); userID != "" {
		summary, err := h.analytics.UserSummary(ctx, userID, window)
		if err != nil {
			fail(err)
			return
		}
		resp.UserStats = &summary
	}
	c.JSON(http.StatusOK, resp)
}
