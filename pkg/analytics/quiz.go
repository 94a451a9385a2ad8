package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/japaniel/glossary/pkg/telemetry"
)

// RecentAttemptsLimit caps QuizStats.RecentAttempts.
const RecentAttemptsLimit = 20

// QuizStats summarizes one user's quiz attempts.
type QuizStats struct {
	TotalAttempts      int     `json:"total_attempts"`
	CorrectAnswers     int     `json:"correct_answers"`
	AccuracyPercentage float64 `json:"accuracy_percentage"`
	AvgResponseTimeMs  float64 `json:"avg_response_time"`
	DaysPracticed      int     `json:"days_practiced"`
	PracticedToday     bool    `json:"has_quiz_today"`
	// CurrentStreak counts consecutive practice days ending today, or ending
	// yesterday when today has no attempt yet.
	CurrentStreak  int             `json:"current_streak"`
	Sessions       int             `json:"sessions"`
	RecentAttempts []RecentAttempt `json:"recent_results"`
}

// RecentAttempt is one attempt in QuizStats.RecentAttempts.
type RecentAttempt struct {
	ID             int64     `json:"id"`
	TermID         string    `json:"term_id"`
	Term           string    `json:"term,omitempty"`
	Correct        bool      `json:"correct"`
	ResponseTimeMs int       `json:"response_time_ms"`
	Difficulty     string    `json:"difficulty,omitempty"`
	Timestamp      time.Time `json:"created_at"`
}

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{y, m, d}
}

func (d day) prev(loc *time.Location) day {
	return dayOf(time.Date(d.year, d.month, d.day, 12, 0, 0, 0, loc).AddDate(0, 0, -1), loc)
}

// CalculateQuizStats computes statistics from a user's attempt history. Events
// of other types are ignored. Calendar days are taken in loc, UTC when nil.
func CalculateQuizStats(events []telemetry.Event, now time.Time, loc *time.Location) QuizStats {
	if loc == nil {
		loc = time.UTC
	}

	var (
		stats    = QuizStats{RecentAttempts: []RecentAttempt{}}
		attempts []telemetry.Event
		totalMs  int
		timed    int
		days     = make(map[day]bool)
		sessions = make(map[string]bool)
	)
	for _, e := range events {
		if e.Type != telemetry.InteractionQuizAttempt {
			continue
		}
		attempts = append(attempts, e)
		stats.TotalAttempts++
		if e.Correct {
			stats.CorrectAnswers++
		}
		if e.ResponseTimeMs > 0 {
			totalMs += e.ResponseTimeMs
			timed++
		}
		days[dayOf(e.Timestamp, loc)] = true
		if e.SessionID != "" {
			sessions[e.SessionID] = true
		}
	}
	if stats.TotalAttempts == 0 {
		return stats
	}

	stats.AccuracyPercentage = round2(float64(stats.CorrectAnswers) / float64(stats.TotalAttempts) * 100)
	if timed > 0 {
		stats.AvgResponseTimeMs = round2(float64(totalMs) / float64(timed))
	}
	stats.DaysPracticed = len(days)
	stats.Sessions = len(sessions)

	today := dayOf(now, loc)
	stats.PracticedToday = days[today]
	cursor := today
	if !stats.PracticedToday {
		cursor = today.prev(loc)
	}
	for days[cursor] {
		stats.CurrentStreak++
		cursor = cursor.prev(loc)
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].Timestamp.After(attempts[j].Timestamp)
	})
	if len(attempts) > RecentAttemptsLimit {
		attempts = attempts[:RecentAttemptsLimit]
	}
	for _, e := range attempts {
		r := RecentAttempt{
			ID:             e.ID,
			Term:           e.Term,
			Correct:        e.Correct,
			ResponseTimeMs: max(e.ResponseTimeMs, 0),
			Difficulty:     e.Difficulty,
			Timestamp:      e.Timestamp,
		}
		if e.TermID != nil {
			r.TermID = *e.TermID
		}
		stats.RecentAttempts = append(stats.RecentAttempts, r)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
