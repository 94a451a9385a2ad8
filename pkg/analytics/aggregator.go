// Package analytics derives trending rankings, search reports and quiz
// statistics from the interaction log. Nothing here is stored; every result is
// recomputed from events on request.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/japaniel/glossary/internal/logger"
	"github.com/japaniel/glossary/pkg/dictionary"
	"github.com/japaniel/glossary/pkg/telemetry"
)

// AggregationUnavailable is returned when the event store cannot be read.
// Callers should fall back to editorial content rather than fail the page.
type AggregationUnavailable struct {
	Op  string
	Err error
}

func (e *AggregationUnavailable) Error() string {
	return fmt.Sprintf("%s aggregation unavailable: %v", e.Op, e.Err)
}

func (e *AggregationUnavailable) Unwrap() error { return e.Err }

// Weights maps an interaction type to its contribution to a trending score.
// Types that are absent weigh zero.
type Weights map[telemetry.InteractionType]float64

// DefaultWeights counts views and searches equally and ignores everything else.
func DefaultWeights() Weights {
	return Weights{telemetry.InteractionView: 1, telemetry.InteractionSearch: 1}
}

// types returns the positively weighted types in a fixed order.
func (w Weights) types() []telemetry.InteractionType {
	var out []telemetry.InteractionType
	for _, t := range telemetry.InteractionTypes {
		if w[t] > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TermCatalog resolves term ids to terms.
type TermCatalog interface {
	ByID(id string) (dictionary.Term, bool)
}

// Options configures an Aggregator.
type Options struct {
	Weights Weights
	// Fallback holds editorial term ids used to pad a short trending list.
	Fallback []string
	// Location is the reporting timezone for calendar days; UTC when nil.
	Location *time.Location
	Terms    TermCatalog
	Now      func() time.Time
}

// Aggregator answers analytics queries against a telemetry store.
type Aggregator struct {
	store    telemetry.Store
	weights  Weights
	fallback []string
	loc      *time.Location
	terms    TermCatalog
	now      func() time.Time
}

// NewAggregator returns an aggregator reading from store.
func NewAggregator(store telemetry.Store, opts Options) *Aggregator {
	if opts.Weights == nil {
		opts.Weights = DefaultWeights()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		store:    store,
		weights:  opts.Weights,
		fallback: append([]string(nil), opts.Fallback...),
		loc:      opts.Location,
		terms:    opts.Terms,
		now:      opts.Now,
	}
}

// Now returns the aggregator's clock reading.
func (a *Aggregator) Now() time.Time { return a.now() }

func (a *Aggregator) query(ctx context.Context, op string, q telemetry.Query) ([]telemetry.Event, error) {
	events, err := a.store.Query(ctx, q)
	if err != nil {
		ctx = logger.WithComponent(ctx, "glossary.analytics")
		slog.WarnContext(ctx, "event store query failed", "op", op, "error", err)
		return nil, &AggregationUnavailable{Op: op, Err: err}
	}
	return events, nil
}

func (a *Aggregator) termName(id string) string {
	if a.terms == nil {
		return ""
	}
	if t, ok := a.terms.ByID(id); ok {
		return t.Term
	}
	return ""
}

// TrendingScore is one ranked term.
type TrendingScore struct {
	TermID   string                            `json:"term_id"`
	Term     string                            `json:"term,omitempty"`
	Window   Window                            `json:"window"`
	Counts   map[telemetry.InteractionType]int `json:"counts"`
	Score    float64                           `json:"score"`
	Fallback bool                              `json:"fallback,omitempty"`
}

// Trending ranks terms by weighted interaction count inside w and returns at
// most limit of them. Equal scores keep the order in which the terms first
// appear in the window. When fewer than limit terms were active the list is
// padded from the fallback ids.
func (a *Aggregator) Trending(ctx context.Context, w Window, limit int) ([]TrendingScore, error) {
	if limit <= 0 {
		return []TrendingScore{}, nil
	}

	var ranked []TrendingScore
	if types := a.weights.types(); len(types) > 0 {
		events, err := a.query(ctx, "trending", telemetry.Query{Since: w.Since, Until: w.Until, Types: types})
		if err != nil {
			return nil, err
		}
		ranked = a.rank(events, w)
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return a.pad(ranked, w, limit), nil
}

func (a *Aggregator) rank(events []telemetry.Event, w Window) []TrendingScore {
	pos := make(map[string]int)
	var scores []TrendingScore
	for _, e := range events {
		if e.TermID == nil {
			continue
		}
		i, ok := pos[*e.TermID]
		if !ok {
			i = len(scores)
			pos[*e.TermID] = i
			scores = append(scores, TrendingScore{
				TermID: *e.TermID,
				Term:   e.Term,
				Window: w,
				Counts: make(map[telemetry.InteractionType]int),
			})
		}
		scores[i].Counts[e.Type]++
		scores[i].Score += a.weights[e.Type]
	}

	active := scores[:0]
	for _, s := range scores {
		if s.Score > 0 {
			if name := a.termName(s.TermID); name != "" {
				s.Term = name
			}
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Score > active[j].Score
	})
	return active
}

func (a *Aggregator) pad(ranked []TrendingScore, w Window, limit int) []TrendingScore {
	if ranked == nil {
		ranked = []TrendingScore{}
	}
	seen := make(map[string]bool, len(ranked))
	for _, s := range ranked {
		seen[s.TermID] = true
	}
	for _, id := range a.fallback {
		if len(ranked) >= limit {
			break
		}
		if id == "" || seen[id] {
			continue
		}
		name := a.termName(id)
		if a.terms != nil && name == "" {
			// Editorial lists can name terms that were since removed.
			continue
		}
		seen[id] = true
		ranked = append(ranked, TrendingScore{
			TermID:   id,
			Term:     name,
			Window:   w,
			Counts:   map[telemetry.InteractionType]int{},
			Fallback: true,
		})
	}
	return ranked
}

// SearchCount is how often one search text was entered.
type SearchCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// SearchReport splits searches in a window into those that resolved to a term
// and those that did not.
type SearchReport struct {
	Window   Window        `json:"window"`
	Total    int           `json:"total"`
	Found    []SearchCount `json:"top_searches"`
	NotFound []SearchCount `json:"top_not_found"`
}

// SearchReport counts search texts case-insensitively. Searches without a
// found flag count as found. Each list holds at most limit entries.
func (a *Aggregator) SearchReport(ctx context.Context, w Window, limit int) (SearchReport, error) {
	events, err := a.query(ctx, "search report", telemetry.Query{
		Since: w.Since,
		Until: w.Until,
		Types: []telemetry.InteractionType{telemetry.InteractionSearch},
	})
	if err != nil {
		return SearchReport{}, err
	}

	found, notFound := newCounter(), newCounter()
	report := SearchReport{Window: w}
	for _, e := range events {
		text := strings.TrimSpace(e.SearchedTerm())
		if text == "" {
			continue
		}
		report.Total++
		if ok, present := e.Found(); present && !ok {
			notFound.add(text)
		} else {
			found.add(text)
		}
	}
	report.Found = found.top(limit)
	report.NotFound = notFound.top(limit)
	return report, nil
}

// counter tallies strings by their case-folded form and reports the first
// spelling it saw.
type counter struct {
	pos    map[string]int
	counts []SearchCount
}

func newCounter() *counter {
	return &counter{pos: make(map[string]int)}
}

func (c *counter) add(s string) {
	key := strings.ToLower(s)
	i, ok := c.pos[key]
	if !ok {
		i = len(c.counts)
		c.pos[key] = i
		c.counts = append(c.counts, SearchCount{Term: s})
	}
	c.counts[i].Count++
}

func (c *counter) top(limit int) []SearchCount {
	out := append([]SearchCount{}, c.counts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TermActivity is the per-type interaction count of one term.
type TermActivity struct {
	TermID   string `json:"term_id"`
	Term     string `json:"term"`
	Category string `json:"category,omitempty"`
	Views    int    `json:"view_count"`
	Searches int    `json:"search_count"`
	Copies   int    `json:"copy_count"`
	YouTube  int    `json:"youtube_count"`
	Bookmark int    `json:"bookmark_count"`
}

// TermStats returns the most viewed terms in w, at most limit of them.
// Terms that were never viewed are left out.
func (a *Aggregator) TermStats(ctx context.Context, w Window, limit int) ([]TermActivity, error) {
	all, err := a.activity(ctx, "term stats", w)
	if err != nil {
		return nil, err
	}
	out := make([]TermActivity, 0, len(all))
	for _, t := range all {
		if t.Views > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CategoryCount is the number of views of all terms in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Views    int    `json:"views"`
}

// UncategorizedLabel names the bucket for terms without a category.
const UncategorizedLabel = "uncategorized"

// CategoryBreakdown sums views per term category in w, busiest first.
func (a *Aggregator) CategoryBreakdown(ctx context.Context, w Window) ([]CategoryCount, error) {
	all, err := a.activity(ctx, "category breakdown", w)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int)
	for _, t := range all {
		if t.Views == 0 {
			continue
		}
		cat := t.Category
		if cat == "" {
			cat = UncategorizedLabel
		}
		totals[cat] += t.Views
	}
	out := make([]CategoryCount, 0, len(totals))
	for cat, n := range totals {
		out = append(out, CategoryCount{Category: cat, Views: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (a *Aggregator) activity(ctx context.Context, op string, w Window) ([]TermActivity, error) {
	events, err := a.query(ctx, op, telemetry.Query{
		Since: w.Since,
		Until: w.Until,
		Types: []telemetry.InteractionType{
			telemetry.InteractionView, telemetry.InteractionSearch, telemetry.InteractionCopy,
			telemetry.InteractionYouTube, telemetry.InteractionBookmark,
		},
	})
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int)
	var out []TermActivity
	for _, e := range events {
		if e.TermID == nil {
			continue
		}
		i, ok := pos[*e.TermID]
		if !ok {
			i = len(out)
			pos[*e.TermID] = i
			t := TermActivity{TermID: *e.TermID, Term: e.Term}
			if a.terms != nil {
				if term, ok := a.terms.ByID(t.TermID); ok {
					t.Term, t.Category = term.Term, term.Category
				}
			}
			out = append(out, t)
		}
		switch e.Type {
		case telemetry.InteractionView:
			out[i].Views++
		case telemetry.InteractionSearch:
			out[i].Searches++
		case telemetry.InteractionCopy:
			out[i].Copies++
		case telemetry.InteractionYouTube:
			out[i].YouTube++
		case telemetry.InteractionBookmark:
			out[i].Bookmark++
		}
	}
	return out, nil
}

// UserSummary is a short overview of one user's recent activity.
type UserSummary struct {
	UserID            string  `json:"user_id"`
	TotalInteractions int     `json:"total_interactions"`
	QuizAccuracy      float64 `json:"quiz_accuracy"`
	DaysPracticed     int     `json:"days_practiced"`
}

// UserSummary counts the user's interactions in w and adds their all-time quiz figures.
func (a *Aggregator) UserSummary(ctx context.Context, userID string, w Window) (UserSummary, error) {
	events, err := a.query(ctx, "user summary", telemetry.Query{Since: w.Since, Until: w.Until, UserID: userID})
	if err != nil {
		return UserSummary{}, err
	}
	stats, err := a.UserQuizStats(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	return UserSummary{
		UserID:            userID,
		TotalInteractions: len(events),
		QuizAccuracy:      stats.AccuracyPercentage,
		DaysPracticed:     stats.DaysPracticed,
	}, nil
}

// UserQuizStats computes quiz statistics over the user's whole attempt history.
func (a *Aggregator) UserQuizStats(ctx context.Context, userID string) (QuizStats, error) {
	if userID == "" {
		return CalculateQuizStats(nil, a.now(), a.loc), nil
	}
	events, err := a.query(ctx, "quiz stats", telemetry.Query{
		UserID: userID,
		Types:  []telemetry.InteractionType{telemetry.InteractionQuizAttempt},
	})
	if err != nil {
		return QuizStats{}, err
	}
	stats := CalculateQuizStats(events, a.now(), a.loc)
	for i := range stats.RecentAttempts {
		r := &stats.RecentAttempts[i]
		if r.Term == "" {
			r.Term = a.termName(r.TermID)
		}
	}
	return stats, nil
}
