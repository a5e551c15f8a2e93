// Package model defines the core domain types shared across the Shuren
// service: session ownership identities, practice session records, profiles,
// and the billing-derived entitlement projection.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity tags the owner of a practice session. Exactly one of AccountID or
// AnonymousID is set: an authenticated account (issued by the auth provider)
// or an opaque client-generated anonymous token. The zero value is
// unidentified and owns nothing.
type Identity struct {
	AccountID   uuid.UUID
	AnonymousID string
}

// Authenticated reports whether the identity is an account.
func (id Identity) Authenticated() bool {
	return id.AccountID != uuid.Nil
}

// Anonymous reports whether the identity is an anonymous token.
func (id Identity) Anonymous() bool {
	return id.AccountID == uuid.Nil && id.AnonymousID != ""
}

// Unidentified reports whether the identity is neither an account nor an
// anonymous token. Ledger operations reject unidentified callers.
func (id Identity) Unidentified() bool {
	return !id.Authenticated() && !id.Anonymous()
}

// AccountIdentity returns an identity for an authenticated account.
func AccountIdentity(accountID uuid.UUID) Identity {
	return Identity{AccountID: accountID}
}

// AnonymousIdentity returns an identity for an anonymous token.
func AnonymousIdentity(token string) Identity {
	return Identity{AnonymousID: token}
}

// PracticeSession is one completed guided practice. Rows are immutable once
// written except for the ownership pair, which changes exactly once when an
// anonymous token is linked to an account.
type PracticeSession struct {
	ID           int64      `json:"-"`
	AccountID    *uuid.UUID `json:"-"`
	AnonymousID  *string    `json:"-"`
	SequenceSlug string     `json:"sequence_slug"`
	DurationSec  int        `json:"duration_sec"`
	CompletedAt  time.Time  `json:"completed_at"`
}

// SessionTotals is the all-time aggregate for one identity.
type SessionTotals struct {
	Sessions int `json:"sessions"`
	Seconds  int `json:"seconds"`
}

// ExperienceLevel is the self-reported practice experience tier.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// Profile is the per-account row, created lazily on first profile edit or
// first entitlement event. The embedded Entitlement marshals flat so the
// profile endpoint returns one row the way clients store it.
type Profile struct {
	AccountID       uuid.UUID        `json:"user_id"`
	DisplayName     *string          `json:"display_name"`
	GoalPerWeek     *int             `json:"goal_per_week"`
	ExperienceLevel *ExperienceLevel `json:"experience_level"`
	Timezone        *string          `json:"tz"`
	Entitlement
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// ProfileUpdate carries a partial profile edit. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName     *string          `json:"display_name"`
	GoalPerWeek     *int             `json:"goal_per_week"`
	ExperienceLevel *ExperienceLevel `json:"experience_level"`
	Timezone        *string          `json:"tz"`
}

// EntitlementStatus is the internal billing-derived access level. It is a
// closed enum: provider statuses outside the mapping table collapse to
// StatusFree rather than passing through as unknown strings.
type EntitlementStatus string

const (
	StatusFree     EntitlementStatus = "free"
	StatusActive   EntitlementStatus = "active"
	StatusTrialing EntitlementStatus = "trialing"
	StatusPastDue  EntitlementStatus = "past_due"
)

// Premium reports whether the status grants access to premium features.
func (s EntitlementStatus) Premium() bool {
	return s == StatusActive || s == StatusTrialing
}

// Entitlement is the account's current billing projection, derived from the
// most recently processed billing event. No event history is retained.
type Entitlement struct {
	Status          EntitlementStatus `json:"subscription_status"`
	PeriodEnd       *time.Time        `json:"subscription_current_period_end"`
	Provider        *string           `json:"subscription_provider"`
	CustomerRef     *string           `json:"stripe_customer_id"`
	SubscriptionRef *string           `json:"stripe_subscription_id"`
}

// DayMinutes is one UTC calendar date's accumulated practice minutes.
type DayMinutes struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Minutes int    `json:"minutes"`
}

// RecentSession is one entry of the recent-activity digest.
type RecentSession struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Slug    string `json:"slug"`
	Minutes int    `json:"minutes"`
}

// SummaryTotals aggregates the current week and calendar month.
type SummaryTotals struct {
	WeekMinutes   int `json:"week_minutes"`
	MonthMinutes  int `json:"month_minutes"`
	TotalSessions int `json:"total_sessions"`
}

// UserSummary is the compact analytics digest handed to the chat relay as
// conversational context.
type UserSummary struct {
	Timezone     string          `json:"tz"`
	GoalPerWeek  int             `json:"goal_per_week"`
	StreakDays   int             `json:"streak_days"`
	DailyMinutes []DayMinutes    `json:"daily_minutes"`
	Totals       SummaryTotals   `json:"totals"`
	LastSessions []RecentSession `json:"last_sessions"`
}
