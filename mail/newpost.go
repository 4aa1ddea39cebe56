package mail

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/quantonganh/postbox"
)

// NewPostMailer emails every new feed item to the active subscribers
type NewPostMailer struct {
	mailer      *Mailer
	subscribers []postbox.Registration

	Logger zerolog.Logger
}

// Ensure NewPostMailer implements postbox.Consumer
var _ postbox.Consumer = (*NewPostMailer)(nil)

// NewNewPostMailer loads the active subscribers once; registrations made later
// are picked up by the next run.
func NewNewPostMailer(store postbox.SubscriberStore, mailer *Mailer) (*NewPostMailer, error) {
	subscribers, err := store.ActiveSubscribers()
	if err != nil {
		return nil, errors.Wrap(err, "active subscribers")
	}

	return &NewPostMailer{
		mailer:      mailer,
		subscribers: subscribers,
		Logger:      zerolog.Nop(),
	}, nil
}

// Consume sends item to each subscriber over a single connection.
// A failed recipient does not stop the others, but fails the item.
func (npm *NewPostMailer) Consume(item postbox.FeedItem) error {
	if len(npm.subscribers) == 0 {
		return nil
	}

	s, err := npm.mailer.dialer.Dial()
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer s.Close()

	var failed int
	for _, subscriber := range npm.subscribers {
		msg, err := npm.mailer.newMessage(string(subscriber.Email), item.Title, npm.body(item))
		if err != nil {
			return err
		}

		if err := gomail.Send(s, msg); err != nil {
			failed++
			npm.Logger.Error().Err(err).Str("email", string(subscriber.Email)).Str("link", item.Link).Msg("Failed to send new post")
			sentry.CaptureException(err)
		}
	}

	npm.Logger.Info().
		Str("link", item.Link).
		Int("subscribers", len(npm.subscribers)).
		Int("failed", failed).
		Msg("Sent new post")

	if failed > 0 {
		return errors.Errorf("failed to send %s to %d of %d subscribers", item.Link, failed, len(npm.subscribers))
	}

	return nil
}

func (npm *NewPostMailer) body(item postbox.FeedItem) hermes.Email {
	intros := []string{item.Description}
	if item.Image != "" {
		intros = append(intros, fmt.Sprintf("Cover image: %s", item.Image))
	}

	return hermes.Email{
		Body: hermes.Body{
			Title:  item.Title,
			Intros: intros,
			Actions: []hermes.Action{
				{
					Instructions: fmt.Sprintf("Published on %s", item.PubDate.Format("January 2, 2006")),
					Button: hermes.Button{
						Color: "#22BC66",
						Text:  "Read the post",
						Link:  item.Link,
					},
				},
			},
			Outros: []string{
				fmt.Sprintf("You receive this email because you subscribed to %s.", npm.mailer.ProductName),
			},
		},
	}
}
