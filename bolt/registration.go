package bolt

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"

	"github.com/quantonganh/postbox"
)

const (
	settingsBucket = "settings"
	lastSeenKey    = "last_seen"
)

type registration struct {
	Email         string `storm:"id"`
	LastUpdate    time.Time
	State         string `storm:"index"`
	ConfirmToken  []byte
	ConfirmAction string
}

func toRecord(r *postbox.Registration) *registration {
	return &registration{
		Email:         string(r.Email),
		LastUpdate:    r.LastUpdate.UTC(),
		State:         string(r.State),
		ConfirmToken:  r.ConfirmToken,
		ConfirmAction: string(r.ConfirmAction),
	}
}

func (rec *registration) toRegistration() *postbox.Registration {
	r := &postbox.Registration{
		Email:         postbox.Email(rec.Email),
		LastUpdate:    rec.LastUpdate.UTC(),
		State:         postbox.State(rec.State),
		ConfirmAction: postbox.Action(rec.ConfirmAction),
	}
	if len(rec.ConfirmToken) > 0 {
		r.ConfirmToken = postbox.Token(rec.ConfirmToken)
	}
	return r
}

// Store persists registrations and the feed watermark in a storm database
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

// Upsert saves a registration, replacing any record with the same email
func (s *Store) Upsert(r *postbox.Registration) error {
	if err := s.db.stormDB.Save(toRecord(r)); err != nil {
		return errors.Errorf("failed to save: %v", err)
	}

	return nil
}

// Find finds a registration by email
func (s *Store) Find(email postbox.Email) (*postbox.Registration, error) {
	var rec registration
	if err := s.db.stormDB.One("Email", string(email), &rec); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Errorf("failed to find by email: %v", err)
	}

	return rec.toRegistration(), nil
}

// Delete removes the registration of email if there is one
func (s *Store) Delete(email postbox.Email) error {
	err := s.db.stormDB.DeleteStruct(&registration{Email: string(email)})
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return errors.Errorf("failed to delete: %v", err)
	}

	return nil
}

// ActiveSubscribers finds subscribed registrations, including those waiting to unsubscribe
func (s *Store) ActiveSubscribers() ([]postbox.Registration, error) {
	var subscribers []postbox.Registration
	for _, state := range []postbox.State{postbox.StateSubscribed, postbox.StatePendingUnsubscribe} {
		var recs []registration
		if err := s.db.stormDB.Find("State", string(state), &recs); err != nil && !errors.Is(err, storm.ErrNotFound) {
			return nil, errors.Errorf("failed to find by state: %v", err)
		}
		for i := range recs {
			subscribers = append(subscribers, *recs[i].toRegistration())
		}
	}

	return subscribers, nil
}

// DropUnconfirmed deletes pending subscriptions last updated before the given time
func (s *Store) DropUnconfirmed(before time.Time) (int, error) {
	var recs []registration
	if err := s.db.stormDB.Find("State", string(postbox.StatePendingSubscribe), &recs); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return 0, nil
		}
		return 0, errors.Errorf("failed to find by state: %v", err)
	}

	tx, err := s.db.stormDB.Begin(true)
	if err != nil {
		return 0, errors.Errorf("failed to begin: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var n int
	for i := range recs {
		if !recs[i].LastUpdate.Before(before) {
			continue
		}
		if err := tx.DeleteStruct(&recs[i]); err != nil {
			return 0, errors.Errorf("failed to delete: %v", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Errorf("failed to commit: %v", err)
	}

	return n, nil
}

// LastSeen returns the stored feed watermark
func (s *Store) LastSeen() (*time.Time, error) {
	var t time.Time
	if err := s.db.stormDB.Get(settingsBucket, lastSeenKey, &t); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Errorf("failed to get last seen: %v", err)
	}

	t = t.UTC()
	return &t, nil
}

// SetLastSeen stores the feed watermark
func (s *Store) SetLastSeen(t time.Time) error {
	if err := s.db.stormDB.Set(settingsBucket, lastSeenKey, t.UTC()); err != nil {
		return errors.Errorf("failed to set last seen: %v", err)
	}

	return nil
}
