package dto

import (
	"github.com/japaniel/glossary/pkg/analytics"
	"github.com/japaniel/glossary/pkg/search"
)

type TrackRequest struct {
	Term            string         `json:"term" binding:"required"`
	InteractionType string         `json:"interaction_type" binding:"required"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type TrackResponse struct {
	Success   bool   `json:"success"`
	Tracked   bool   `json:"tracked"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id"`
}

type QuizResultRequest struct {
	TermID         string `json:"term_id" binding:"required"`
	Correct        *bool  `json:"correct" binding:"required"`
	ResponseTimeMs *int   `json:"response_time_ms" binding:"required,min=0"`
	Difficulty     string `json:"difficulty,omitempty" binding:"omitempty,oneof=basic advanced"`
}

type QuizStatsResponse struct {
	Stats         analytics.QuizStats       `json:"stats"`
	RecentResults []analytics.RecentAttempt `json:"recent_results"`
	HasQuizToday  bool                      `json:"has_quiz_today"`
}

type TrendingTerm struct {
	analytics.TrendingScore
	Definition string `json:"definition,omitempty"`
	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type TrendingResponse struct {
	Terms             []TrendingTerm `json:"terms"`
	Timeframe         string         `json:"timeframe"`
	TotalInteractions int            `json:"total_interactions"`
}

type AnalyticsResponse struct {
	Window        analytics.Window          `json:"time_range"`
	Days          int                       `json:"days"`
	MostViewed    []analytics.TermActivity  `json:"most_viewed"`
	TopSearches   []analytics.SearchCount   `json:"top_searches"`
	TopNotFound   []analytics.SearchCount   `json:"top_not_found"`
	CategoryStats []analytics.CategoryCount `json:"category_stats"`
	UserStats     *analytics.UserSummary    `json:"user_stats"`
}

type SearchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"results"`
}

type AnnotateRequest struct {
	HTML             string `json:"html" binding:"required"`
	MaxTermsPerBlock int    `json:"max_terms_per_block,omitempty" binding:"omitempty,min=1,max=20"`
	OnlyBasic        bool   `json:"only_basic,omitempty"`
}

type AnnotateResponse struct {
	HTML         string   `json:"html"`
	TermsFound   []string `json:"terms_found"`
	Skipped      []string `json:"skipped,omitempty"`
	IndexVersion uint64   `json:"index_version"`
}
