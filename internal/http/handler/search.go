package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/dto"
	"github.com/japaniel/glossary/internal/http/middleware"
	"github.com/japaniel/glossary/pkg/search"
	"github.com/japaniel/glossary/pkg/telemetry"
)

type SearchHandler struct {
	searcher TermSearcher
	recorder Recorder
}

func NewSearchHandler(searcher TermSearcher, recorder Recorder) *SearchHandler {
	return &SearchHandler{searcher: searcher, recorder: recorder}
}

// Search looks terms up by name, alias or definition and records the search.
func (h *SearchHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, ok := intQuery(c, "limit", search.DefaultLimit, search.MaxLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	hits, err := h.searcher.Search(ctx, q, limit)
	if err != nil {
		slog.ErrorContext(ctx, "term search failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrNotReady) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "search unavailable"})
		return
	}

	h.recorder.RecordInteraction(ctx, q, telemetry.InteractionSearch, middleware.SessionID(c), middleware.UserID(c),
		map[string]any{"results": len(hits)})
	c.JSON(http.StatusOK, dto.SearchResponse{Query: q, Hits: hits})
}
