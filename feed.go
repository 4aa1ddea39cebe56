package postbox

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// FeedItem represents a published post
type FeedItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PubDate     time.Time `json:"pub_date"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
}

// WatermarkStore persists the publication date of the newest feed item seen
type WatermarkStore interface {
	// LastSeen returns nil and no error when nothing was seen yet.
	LastSeen() (*time.Time, error)
	SetLastSeen(t time.Time) error
}

// Consumer receives each new feed item
type Consumer interface {
	Consume(item FeedItem) error
}

// ConsumerFunc adapts a function to the Consumer interface
type ConsumerFunc func(item FeedItem) error

// Consume calls f(item)
func (f ConsumerFunc) Consume(item FeedItem) error {
	return f(item)
}

// NewPostNotifier dispatches feed items published after the stored watermark.
//
// Runs against the same store must not overlap.
type NewPostNotifier struct {
	store    WatermarkStore
	consumer Consumer

	Now    func() time.Time
	Logger zerolog.Logger
}

// NewNewPostNotifier returns new post notifier
func NewNewPostNotifier(store WatermarkStore, consumer Consumer) *NewPostNotifier {
	if store == nil {
		panic("postbox: nil watermark store")
	}
	if consumer == nil {
		panic("postbox: nil consumer")
	}

	return &NewPostNotifier{
		store:    store,
		consumer: consumer,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Logger: zerolog.Nop(),
	}
}

// Notify advances the watermark over feed and dispatches the new items oldest first.
// It returns the number of items the consumer accepted.
//
// The watermark is stored before dispatching: an item whose dispatch fails is not
// retried by later runs.
func (n *NewPostNotifier) Notify(feed []FeedItem) (int, error) {
	const op = "NewPostNotifier.Notify"

	cutoff, err := n.store.LastSeen()
	if err != nil {
		return 0, &Error{Op: op, Err: errors.Wrap(err, "last seen")}
	}

	// The watermark is taken from this snapshot alone, so it moves back when
	// the newest item leaves the feed.
	watermark := n.Now()
	if len(feed) > 0 {
		watermark = feed[0].PubDate
		for _, item := range feed[1:] {
			if item.PubDate.After(watermark) {
				watermark = item.PubDate
			}
		}
	}
	if err := n.store.SetLastSeen(watermark); err != nil {
		return 0, &Error{Op: op, Err: errors.Wrap(err, "set last seen")}
	}

	newItems := selectNewItems(feed, cutoff)
	n.Logger.Info().
		Int("feed", len(feed)).
		Int("new", len(newItems)).
		Time("watermark", watermark).
		Msg("Dispatching new posts")

	for i, item := range newItems {
		if err := n.consumer.Consume(item); err != nil {
			return i, &Error{Op: op, Err: errors.Wrapf(err, "consume %s", item.Link)}
		}
	}

	return len(newItems), nil
}

func selectNewItems(feed []FeedItem, cutoff *time.Time) []FeedItem {
	items := make([]FeedItem, 0, len(feed))
	for _, item := range feed {
		if cutoff == nil || item.PubDate.After(*cutoff) {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PubDate.Before(items[j].PubDate)
	})

	return items
}
