// Package analytics derives the per-account practice digest handed to the
// chat relay: daily minutes, streak, weekly and monthly totals, and a short
// recent-activity list.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
)

// windowDays is the lookback for the daily-minutes series, counting today.
const windowDays = 60

// recentLimit caps the recent-activity digest.
const recentLimit = 5

const (
	defaultTimezone    = "Asia/Tokyo"
	defaultGoalPerWeek = 3
)

// SessionSource provides the session rows the digest is built from.
type SessionSource interface {
	SessionsInRange(ctx context.Context, id model.Identity, from, to time.Time) ([]model.PracticeSession, error)
}

// ProfileSource provides the profile defaults (timezone, weekly goal).
type ProfileSource interface {
	GetProfile(ctx context.Context, accountID uuid.UUID) (model.Profile, error)
}

// Service computes account summaries.
type Service struct {
	sessions SessionSource
	profiles ProfileSource
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an analytics service.
func New(sessions SessionSource, profiles ProfileSource, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		profiles: profiles,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summarize builds the digest for one account over the last 60 days. Days are
// bucketed on the UTC calendar; the profile timezone is carried in the digest
// for the conversational layer but does not shift bucket boundaries. A
// missing profile falls back to defaults; a storage failure returns nil so
// the caller can degrade to an uncontextualized conversation.
func (s *Service) Summarize(ctx context.Context, accountID uuid.UUID) *model.UserSummary {
	if accountID == uuid.Nil {
		return nil
	}

	tz := defaultTimezone
	goal := defaultGoalPerWeek
	prof, err := s.profiles.GetProfile(ctx, accountID)
	if err == nil {
		if prof.Timezone != nil && *prof.Timezone != "" {
			tz = *prof.Timezone
		}
		if prof.GoalPerWeek != nil {
			goal = *prof.GoalPerWeek
		}
	}

	now := s.now().UTC()
	from := now.AddDate(0, 0, -(windowDays - 1))
	// The range end is exclusive in storage; nudge past now to include a
	// session completing at this exact instant.
	rows, err := s.sessions.SessionsInRange(ctx, model.AccountIdentity(accountID), from, now.Add(time.Second))
	if err != nil {
		s.logger.Warn("analytics: summary query failed", "error", err)
		return nil
	}

	byDay := make(map[string]int)
	for _, r := range rows {
		day := r.CompletedAt.UTC().Format("2006-01-02")
		byDay[day] += minutesOf(r.DurationSec)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	daily := make([]model.DayMinutes, 0, len(days))
	for _, day := range days {
		daily = append(daily, model.DayMinutes{Date: day, Minutes: byDay[day]})
	}

	// Streak walks back from today; a day without practice ends it, today
	// included.
	streak := 0
	for d := now; ; d = d.AddDate(0, 0, -1) {
		if _, ok := byDay[d.Format("2006-01-02")]; !ok {
			break
		}
		streak++
	}

	weekStart := startOfDay(now).AddDate(0, 0, -int(now.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	totals := model.SummaryTotals{TotalSessions: len(rows)}
	for _, r := range rows {
		at := r.CompletedAt.UTC()
		if !at.Before(weekStart) {
			totals.WeekMinutes += minutesOf(r.DurationSec)
		}
		if !at.Before(monthStart) {
			totals.MonthMinutes += minutesOf(r.DurationSec)
		}
	}

	recent := make([]model.RecentSession, 0, recentLimit)
	for i := len(rows) - 1; i >= 0 && len(recent) < recentLimit; i-- {
		r := rows[i]
		recent = append(recent, model.RecentSession{
			Date:    r.CompletedAt.UTC().Format("2006-01-02"),
			Slug:    r.SequenceSlug,
			Minutes: minutesOf(r.DurationSec),
		})
	}

	return &model.UserSummary{
		Timezone:     tz,
		GoalPerWeek:  goal,
		StreakDays:   streak,
		DailyMinutes: daily,
		Totals:       totals,
		LastSessions: recent,
	}
}

func minutesOf(sec int) int {
	// Round half up, matching how durations are shown to the user.
	return (sec + 30) / 60
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
