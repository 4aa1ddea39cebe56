package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quantonganh/postbox"
)

const lastSeenKey = "last_seen"

type registrationRow struct {
	Email         string         `db:"email"`
	LastUpdate    time.Time      `db:"last_update"`
	State         string         `db:"state"`
	ConfirmToken  []byte         `db:"confirm_token"`
	ConfirmAction sql.NullString `db:"confirm_action"`
}

func (row *registrationRow) toRegistration() postbox.Registration {
	r := postbox.Registration{
		Email:         postbox.Email(row.Email),
		LastUpdate:    row.LastUpdate.UTC(),
		State:         postbox.State(row.State),
		ConfirmAction: postbox.Action(row.ConfirmAction.String),
	}
	if len(row.ConfirmToken) > 0 {
		r.ConfirmToken = postbox.Token(row.ConfirmToken)
	}
	return r
}

// Store persists registrations and the feed watermark in sqlite
type Store struct {
	db *DB
}

// Ensure Store implements the postbox storage interfaces
var (
	_ postbox.Storage         = (*Store)(nil)
	_ postbox.SubscriberStore = (*Store)(nil)
)

// NewStore returns new store
func NewStore(db *DB) *Store {
	return &Store{
		db: db,
	}
}

// Upsert inserts a registration or replaces the one with the same email
func (s *Store) Upsert(r *postbox.Registration) error {
	const q = `INSERT INTO registrations (email, last_update, state, confirm_token, confirm_action)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			last_update = excluded.last_update,
			state = excluded.state,
			confirm_token = excluded.confirm_token,
			confirm_action = excluded.confirm_action`

	var token interface{}
	if len(r.ConfirmToken) > 0 {
		token = []byte(r.ConfirmToken)
	}
	action := sql.NullString{String: string(r.ConfirmAction), Valid: r.ConfirmAction != ""}

	_, err := s.db.sqlDB.ExecContext(s.db.ctx, q, string(r.Email), r.LastUpdate.UTC(), string(r.State), token, action)
	if err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return nil
}

// Find finds a registration by email
func (s *Store) Find(email postbox.Email) (*postbox.Registration, error) {
	var row registrationRow
	err := s.db.sqlDB.GetContext(s.db.ctx, &row, `SELECT * FROM registrations WHERE email = ?`, string(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find by email %s: %w", email, err)
	}

	r := row.toRegistration()
	return &r, nil
}

// Delete removes the registration of email if there is one
func (s *Store) Delete(email postbox.Email) error {
	if _, err := s.db.sqlDB.ExecContext(s.db.ctx, `DELETE FROM registrations WHERE email = ?`, string(email)); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	return nil
}

// ActiveSubscribers finds subscribed registrations, including those waiting to unsubscribe
func (s *Store) ActiveSubscribers() ([]postbox.Registration, error) {
	var rows []registrationRow
	err := s.db.sqlDB.SelectContext(s.db.ctx, &rows, `SELECT * FROM registrations WHERE state IN (?, ?) ORDER BY email`,
		string(postbox.StateSubscribed), string(postbox.StatePendingUnsubscribe))
	if err != nil {
		return nil, fmt.Errorf("failed to find active subscribers: %w", err)
	}

	subscribers := make([]postbox.Registration, 0, len(rows))
	for i := range rows {
		subscribers = append(subscribers, rows[i].toRegistration())
	}

	return subscribers, nil
}

// DropUnconfirmed deletes pending subscriptions last updated before the given time
func (s *Store) DropUnconfirmed(before time.Time) (int, error) {
	res, err := s.db.sqlDB.ExecContext(s.db.ctx, `DELETE FROM registrations WHERE state = ? AND last_update < ?`,
		string(postbox.StatePendingSubscribe), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to drop unconfirmed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count dropped rows: %w", err)
	}
	return int(n), nil
}

// LastSeen returns the stored feed watermark
func (s *Store) LastSeen() (*time.Time, error) {
	var value string
	err := s.db.sqlDB.GetContext(s.db.ctx, &value, `SELECT value FROM settings WHERE key = ?`, lastSeenKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last seen: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last seen %q: %w", value, err)
	}
	t = t.UTC()
	return &t, nil
}

// SetLastSeen stores the feed watermark
func (s *Store) SetLastSeen(t time.Time) error {
	const q = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	if _, err := s.db.sqlDB.ExecContext(s.db.ctx, q, lastSeenKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to set last seen: %w", err)
	}
	return nil
}
