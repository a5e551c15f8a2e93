package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shuren-app/shuren/internal/model"
)

// InsertSession records a completed practice session for one identity.
// Exactly one ownership column is set, matching the table check constraint.
func (db *DB) InsertSession(ctx context.Context, id model.Identity, s model.PracticeSession) (model.PracticeSession, error) {
	if id.Unidentified() {
		return model.PracticeSession{}, fmt.Errorf("storage: insert session: unidentified owner")
	}
	if s.CompletedAt.IsZero() {
		s.CompletedAt = time.Now().UTC()
	}

	if id.Authenticated() {
		acct := id.AccountID
		s.AccountID = &acct
		s.AnonymousID = nil
	} else {
		anon := id.AnonymousID
		s.AnonymousID = &anon
		s.AccountID = nil
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO practice_sessions (user_id, anonymous_id, sequence_slug, duration_sec, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.AccountID, s.AnonymousID, s.SequenceSlug, s.DurationSec, s.CompletedAt,
	).Scan(&s.ID)
	if err != nil {
		return model.PracticeSession{}, fmt.Errorf("storage: insert session: %w", err)
	}
	return s, nil
}

// SessionsInRange returns the identity's sessions with completed_at in the
// half-open interval [from, to), ordered by completed_at ascending.
func (db *DB) SessionsInRange(ctx context.Context, id model.Identity, from, to time.Time) ([]model.PracticeSession, error) {
	if id.Unidentified() {
		return nil, fmt.Errorf("storage: sessions in range: unidentified owner")
	}

	query := `SELECT id, user_id, anonymous_id, sequence_slug, duration_sec, completed_at
		 FROM practice_sessions
		 WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
		 ORDER BY completed_at ASC`
	var owner any = id.AccountID
	if id.Anonymous() {
		query = `SELECT id, user_id, anonymous_id, sequence_slug, duration_sec, completed_at
		 FROM practice_sessions
		 WHERE anonymous_id = $1 AND user_id IS NULL AND completed_at >= $2 AND completed_at < $3
		 ORDER BY completed_at ASC`
		owner = id.AnonymousID
	}

	rows, err := db.pool.Query(ctx, query, owner, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: sessions in range: %w", err)
	}
	defer rows.Close()

	sessions := []model.PracticeSession{}
	for rows.Next() {
		var s model.PracticeSession
		if err := rows.Scan(&s.ID, &s.AccountID, &s.AnonymousID, &s.SequenceSlug, &s.DurationSec, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("storage: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: sessions in range: %w", err)
	}
	return sessions, nil
}

// SessionTotals returns the identity's all-time session count and summed seconds.
func (db *DB) SessionTotals(ctx context.Context, id model.Identity) (model.SessionTotals, error) {
	if id.Unidentified() {
		return model.SessionTotals{}, fmt.Errorf("storage: session totals: unidentified owner")
	}

	query := `SELECT count(*), coalesce(sum(duration_sec), 0) FROM practice_sessions WHERE user_id = $1`
	var owner any = id.AccountID
	if id.Anonymous() {
		query = `SELECT count(*), coalesce(sum(duration_sec), 0) FROM practice_sessions WHERE anonymous_id = $1 AND user_id IS NULL`
		owner = id.AnonymousID
	}

	var totals model.SessionTotals
	if err := db.pool.QueryRow(ctx, query, owner).Scan(&totals.Sessions, &totals.Seconds); err != nil {
		return model.SessionTotals{}, fmt.Errorf("storage: session totals: %w", err)
	}
	return totals, nil
}

// LinkAnonymousSessions transfers ownership of every session recorded under
// anonymousID to the account in one bulk update. Rows already owned by an
// account are never touched, which keeps the operation idempotent and keeps
// a replayed link from stealing sessions adopted elsewhere. Returns the
// number of rows adopted.
func (db *DB) LinkAnonymousSessions(ctx context.Context, accountID uuid.UUID, anonymousID string) (int64, error) {
	var moved int64
	// The bulk update can deadlock against inserts still arriving for the
	// same token, so it runs under the transient-conflict retry.
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE practice_sessions
			 SET user_id = $1, anonymous_id = NULL
			 WHERE anonymous_id = $2 AND user_id IS NULL`,
			accountID, anonymousID,
		)
		if err != nil {
			return err
		}
		moved = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: link anonymous sessions: %w", err)
	}
	return moved, nil
}
