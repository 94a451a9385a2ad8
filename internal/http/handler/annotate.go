package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/dto"
	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/htmltree"
)

type AnnotateHandler struct {
	index    SnapshotLoader
	defaults annotate.Options
}

func NewAnnotateHandler(index SnapshotLoader, defaults annotate.Options) *AnnotateHandler {
	return &AnnotateHandler{index: index, defaults: defaults}
}

// Annotate marks glossary terms in an HTML fragment. Problems inside the
// fragment never fail the request; the affected parts come back unchanged.
func (h *AnnotateHandler) Annotate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AnnotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := htmltree.ParseFragment(strings.NewReader(req.HTML))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid html"})
		return
	}

	opts := h.defaults
	if req.MaxTermsPerBlock > 0 {
		opts.MaxDistinctTermsPerBlock = req.MaxTermsPerBlock
	}
	opts.OnlyBasic = opts.OnlyBasic || req.OnlyBasic

	snap := h.index.Load()
	res := annotate.Annotate(snap, root, opts)
	resp := dto.AnnotateResponse{TermsFound: res.TermsFound, IndexVersion: snap.Version()}
	if resp.TermsFound == nil {
		resp.TermsFound = []string{}
	}
	for _, s := range res.Skipped {
		slog.WarnContext(ctx, "annotation skipped", "path", s.Path, "reason", s.Reason)
		resp.Skipped = append(resp.Skipped, s.Error())
	}

	out, err := htmltree.RenderString(res.Root)
	if err != nil {
		// Serve the input untouched rather than fail the page.
		slog.ErrorContext(ctx, "failed to render annotated html", "error", err)
		out = req.HTML
		resp.TermsFound = []string{}
	}
	resp.HTML = out
	c.JSON(http.StatusOK, resp)
}
