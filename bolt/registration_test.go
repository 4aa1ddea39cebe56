package bolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonganh/postbox"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db := NewDB(filepath.Join(t.TempDir(), "postbox.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewStore(db)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	lastUpdate := time.Date(2019, 10, 25, 13, 37, 1, 123456789, time.UTC)

	for _, r := range []postbox.Registration{
		{
			Email:         "pending@test.org",
			LastUpdate:    lastUpdate,
			State:         postbox.StatePendingSubscribe,
			ConfirmToken:  postbox.Token("0123456789abcdef"),
			ConfirmAction: postbox.ActionSubscribe,
		},
		{
			Email:      "subscribed@test.org",
			LastUpdate: lastUpdate,
			State:      postbox.StateSubscribed,
		},
		{
			Email:         "leaving@test.org",
			LastUpdate:    lastUpdate,
			State:         postbox.StatePendingUnsubscribe,
			ConfirmToken:  postbox.Token{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 255},
			ConfirmAction: postbox.ActionUnsubscribe,
		},
	} {
		r := r
		t.Run(string(r.Email), func(t *testing.T) {
			require.NoError(t, s.Upsert(&r))

			found, err := s.Find(r.Email)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, r, *found)
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	r := &postbox.Registration{
		Email:         "foo@test.org",
		LastUpdate:    time.Date(2019, 10, 25, 0, 0, 0, 0, time.UTC),
		State:         postbox.StatePendingSubscribe,
		ConfirmToken:  postbox.Token("0123456789abcdef"),
		ConfirmAction: postbox.ActionSubscribe,
	}
	require.NoError(t, s.Upsert(r))

	r.State = postbox.StateSubscribed
	r.ConfirmToken = nil
	r.ConfirmAction = ""
	require.NoError(t, s.Upsert(r))

	found, err := s.Find(r.Email)
	require.NoError(t, err)
	assert.Equal(t, r, found)

	subscribers, err := s.ActiveSubscribers()
	require.NoError(t, err)
	assert.Len(t, subscribers, 1)
}

func TestStoreFindMissing(t *testing.T) {
	s := newTestStore(t)

	found, err := s.Find("nobody@test.org")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(&postbox.Registration{Email: "foo@test.org", State: postbox.StateSubscribed}))

	require.NoError(t, s.Delete("foo@test.org"))
	require.NoError(t, s.Delete("foo@test.org"))

	found, err := s.Find("foo@test.org")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStoreActiveSubscribers(t *testing.T) {
	s := newTestStore(t)
	for email, state := range map[postbox.Email]postbox.State{
		"pending@test.org":    postbox.StatePendingSubscribe,
		"subscribed@test.org": postbox.StateSubscribed,
		"leaving@test.org":    postbox.StatePendingUnsubscribe,
	} {
		require.NoError(t, s.Upsert(&postbox.Registration{Email: email, State: state}))
	}

	subscribers, err := s.ActiveSubscribers()
	require.NoError(t, err)

	var emails []postbox.Email
	for _, r := range subscribers {
		emails = append(emails, r.Email)
	}
	assert.ElementsMatch(t, []postbox.Email{"subscribed@test.org", "leaving@test.org"}, emails)
}

func TestStoreDropUnconfirmed(t *testing.T) {
	s := newTestStore(t)
	cutoff := time.Date(2019, 10, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(&postbox.Registration{Email: "stale@test.org", LastUpdate: cutoff.Add(-time.Minute), State: postbox.StatePendingSubscribe}))
	require.NoError(t, s.Upsert(&postbox.Registration{Email: "fresh@test.org", LastUpdate: cutoff.Add(time.Minute), State: postbox.StatePendingSubscribe}))
	require.NoError(t, s.Upsert(&postbox.Registration{Email: "old@test.org", LastUpdate: cutoff.Add(-time.Hour), State: postbox.StateSubscribed}))

	n, err := s.DropUnconfirmed(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for email, exists := range map[postbox.Email]bool{
		"stale@test.org": false,
		"fresh@test.org": true,
		"old@test.org":   true,
	} {
		found, err := s.Find(email)
		require.NoError(t, err)
		assert.Equal(t, exists, found != nil, email)
	}
}

func TestStoreLastSeen(t *testing.T) {
	s := newTestStore(t)

	lastSeen, err := s.LastSeen()
	require.NoError(t, err)
	assert.Nil(t, lastSeen)

	want := time.Date(2019, 11, 22, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSeen(want))

	lastSeen, err = s.LastSeen()
	require.NoError(t, err)
	require.NotNil(t, lastSeen)
	assert.True(t, want.Equal(*lastSeen))
}
