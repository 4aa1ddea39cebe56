package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonganh/postbox"
	"github.com/quantonganh/postbox/bolt"
)

const rssFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
  <channel>
    <item>
      <title>Hello</title>
      <link>https://quantonganh.com/hello</link>
      <pubDate>Fri, 22 Nov 2019 00:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func newTestApp(t *testing.T, config *postbox.Config) *app {
	t.Helper()

	config.DB.Type = "bolt"
	config.DB.Path = filepath.Join(t.TempDir(), "postbox.db")

	a := newApp(config, zerolog.Nop())
	require.NoError(t, a.Open())
	t.Cleanup(func() {
		_ = a.Close()
	})

	return a
}

func TestSchedulerRegistersJobs(t *testing.T) {
	config := new(postbox.Config)
	config.Cleanup.Cron = "@every 1h"
	config.Feed.Cron = "@every 5m"

	c, err := newApp(config, zerolog.Nop()).scheduler(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	config.Feed.Cron = "every now and then"
	_, err = newApp(config, zerolog.Nop()).scheduler(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid feed cron")
}

func TestScheduledNotifyUsesServeStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	config := new(postbox.Config)
	config.Feed.URL = srv.URL
	config.Feed.Cron = "@every 5m"
	a := newTestApp(t, config)

	require.NoError(t, a.store.Upsert(&postbox.Registration{
		Email:      "foo@gmail.com",
		LastUpdate: time.Date(2019, 11, 1, 0, 0, 0, 0, time.UTC),
		State:      postbox.StateSubscribed,
	}))

	// a separate notify process cannot open the database serve holds
	err := bolt.NewDB(config.DB.Path).Open()
	assert.True(t, errors.Is(err, bolt.ErrLocked))

	c, err := a.scheduler(context.Background())
	require.NoError(t, err)
	entries := c.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()

	lastSeen, err := a.store.LastSeen()
	require.NoError(t, err)
	require.NotNil(t, lastSeen)
	assert.True(t, lastSeen.Equal(time.Date(2019, 11, 22, 0, 0, 0, 0, time.UTC)))
}

func TestClean(t *testing.T) {
	config := new(postbox.Config)
	config.Cleanup.ConfirmTimeoutMinutes = 60
	a := newTestApp(t, config)

	stale := &postbox.Registration{
		Email:         "stale@gmail.com",
		LastUpdate:    time.Now().UTC().Add(-2 * time.Hour),
		State:         postbox.StatePendingSubscribe,
		ConfirmToken:  postbox.Token("0123456789abcdef"),
		ConfirmAction: postbox.ActionSubscribe,
	}
	fresh := &postbox.Registration{
		Email:         "fresh@gmail.com",
		LastUpdate:    time.Now().UTC(),
		State:         postbox.StatePendingSubscribe,
		ConfirmToken:  postbox.Token("fedcba9876543210"),
		ConfirmAction: postbox.ActionSubscribe,
	}
	require.NoError(t, a.store.Upsert(stale))
	require.NoError(t, a.store.Upsert(fresh))

	require.NoError(t, a.Clean())

	r, err := a.store.Find(stale.Email)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = a.store.Find(fresh.Email)
	require.NoError(t, err)
	assert.NotNil(t, r)
}
