package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shuren-app/shuren/internal/model"
)

// GetProfile retrieves the account's profile row, including its entitlement
// projection. Returns ErrNotFound when no row exists yet.
func (db *DB) GetProfile(ctx context.Context, accountID uuid.UUID) (model.Profile, error) {
	var p model.Profile
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, display_name, goal_per_week, experience_level, tz,
		 subscription_status, subscription_current_period_end, subscription_provider,
		 stripe_customer_id, stripe_subscription_id, created_at, updated_at
		 FROM profiles WHERE user_id = $1`, accountID,
	).Scan(
		&p.AccountID, &p.DisplayName, &p.GoalPerWeek, &p.ExperienceLevel, &p.Timezone,
		&p.Status, &p.PeriodEnd, &p.Provider,
		&p.CustomerRef, &p.SubscriptionRef, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("storage: get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile applies a partial profile edit, creating the row on first
// touch. Nil fields in the update keep their stored value; subscription
// columns are never written here.
func (db *DB) UpsertProfile(ctx context.Context, accountID uuid.UUID, upd model.ProfileUpdate) (model.Profile, error) {
	now := time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, display_name, goal_per_week, experience_level, tz, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
			display_name = coalesce($2, profiles.display_name),
			goal_per_week = coalesce($3, profiles.goal_per_week),
			experience_level = coalesce($4, profiles.experience_level),
			tz = coalesce($5, profiles.tz),
			updated_at = $6`,
		accountID, upd.DisplayName, upd.GoalPerWeek, upd.ExperienceLevel, upd.Timezone, now,
	)
	if err != nil {
		return model.Profile{}, fmt.Errorf("storage: upsert profile: %w", err)
	}
	return db.GetProfile(ctx, accountID)
}

// UpsertEntitlement overwrites the account's entitlement projection, creating
// the profile row if the billing event arrives before any profile edit. Only
// subscription columns are touched on conflict.
func (db *DB) UpsertEntitlement(ctx context.Context, accountID uuid.UUID, ent model.Entitlement) error {
	now := time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, subscription_status, subscription_current_period_end,
		 subscription_provider, stripe_customer_id, stripe_subscription_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			subscription_status = $2,
			subscription_current_period_end = $3,
			subscription_provider = $4,
			stripe_customer_id = coalesce($5, profiles.stripe_customer_id),
			stripe_subscription_id = $6,
			updated_at = $7`,
		accountID, ent.Status, ent.PeriodEnd, ent.Provider, ent.CustomerRef, ent.SubscriptionRef, now,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert entitlement: %w", err)
	}
	return nil
}
