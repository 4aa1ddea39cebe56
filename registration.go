package postbox

import (
	"net/mail"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Email is a single mailbox address
type Email string

// State is the state of a registration
type State string

// Registration states
const (
	StatePendingSubscribe   State = "pending_subscribe"
	StateSubscribed         State = "subscribed"
	StatePendingUnsubscribe State = "pending_unsubscribe"
)

// Action is the operation a confirmation token authorizes
type Action string

// Confirmation actions
const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
)

// Registration represents the subscription record of one email address.
// ConfirmToken and ConfirmAction are set only while the registration is pending.
type Registration struct {
	Email         Email
	LastUpdate    time.Time
	State         State
	ConfirmToken  Token
	ConfirmAction Action
}

// IsActive reports whether the registration should receive new posts
func (r *Registration) IsActive() bool {
	return r.State == StateSubscribed || r.State == StatePendingUnsubscribe
}

// RegistrationStore persists registrations keyed by email
type RegistrationStore interface {
	// Upsert inserts or replaces the registration with the same email.
	Upsert(r *Registration) error
	// Find returns nil and no error when no registration exists.
	Find(email Email) (*Registration, error)
	Delete(email Email) error
}

// SubscriberStore is the interface that wraps queries over all registrations
type SubscriberStore interface {
	ActiveSubscribers() ([]Registration, error)
	DropUnconfirmed(before time.Time) (int, error)
}

// Storage is the persistence contract of the registration service and the notifier
type Storage interface {
	RegistrationStore
	WatermarkStore
}

// ConfirmationRequester delivers a confirmation challenge to the address owner
type ConfirmationRequester interface {
	RequestConfirmation(email Email, action Action, token Token) error
}

// RegistrationService handles subscribe, unsubscribe and confirm requests.
//
// Calls for the same email must be serialized by the caller.
type RegistrationService struct {
	store     RegistrationStore
	requester ConfirmationRequester
	tokens    TokenGenerator

	Now    func() time.Time
	Logger zerolog.Logger
}

// NewRegistrationService returns new registration service
func NewRegistrationService(store RegistrationStore, requester ConfirmationRequester, tokens TokenGenerator) *RegistrationService {
	if store == nil {
		panic("postbox: nil registration store")
	}
	if requester == nil {
		panic("postbox: nil confirmation requester")
	}
	if tokens == nil {
		panic("postbox: nil token generator")
	}

	return &RegistrationService{
		store:     store,
		requester: requester,
		tokens:    tokens,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Logger: zerolog.Nop(),
	}
}

// Subscribe starts a subscription for email, or resends the pending confirmation
func (s *RegistrationService) Subscribe(email Email) error {
	const op = "RegistrationService.Subscribe"

	if err := ValidateEmail(email); err != nil {
		return err
	}

	r, err := s.store.Find(email)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if r == nil {
		r = &Registration{
			Email:         email,
			LastUpdate:    s.Now(),
			State:         StatePendingSubscribe,
			ConfirmAction: ActionSubscribe,
		}
	}

	if r.State != StatePendingSubscribe {
		s.Logger.Debug().Str("email", string(email)).Str("state", string(r.State)).Msg("Ignoring subscribe request")
		return nil
	}

	r.LastUpdate = s.Now()
	if r.ConfirmToken == nil {
		if r.ConfirmToken, err = s.tokens.NextToken(); err != nil {
			return &Error{Op: op, Err: err}
		}
	}

	if err := s.requestConfirmation(r); err != nil {
		return &Error{Op: op, Err: err}
	}

	return nil
}

// Unsubscribe starts the unsubscription of an active registration
func (s *RegistrationService) Unsubscribe(email Email) error {
	const op = "RegistrationService.Unsubscribe"

	if err := ValidateEmail(email); err != nil {
		return err
	}

	r, err := s.store.Find(email)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if r == nil || !r.IsActive() {
		s.Logger.Debug().Str("email", string(email)).Msg("Ignoring unsubscribe request")
		return nil
	}

	// A new token every time invalidates any outstanding unsubscribe link.
	token, err := s.tokens.NextToken()
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	r.State = StatePendingUnsubscribe
	r.LastUpdate = s.Now()
	r.ConfirmToken = token
	r.ConfirmAction = ActionUnsubscribe

	if err := s.requestConfirmation(r); err != nil {
		return &Error{Op: op, Err: err}
	}

	return nil
}

// Confirm completes the pending action of email if token matches
func (s *RegistrationService) Confirm(email Email, token Token) error {
	const op = "RegistrationService.Confirm"

	r, err := s.store.Find(email)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	if r == nil || r.ConfirmAction == "" || !r.ConfirmToken.Equal(token) {
		return ErrUnauthorized
	}

	switch r.ConfirmAction {
	case ActionSubscribe:
		r.State = StateSubscribed
		r.LastUpdate = s.Now()
		r.ConfirmToken = nil
		r.ConfirmAction = ""
		if err := s.store.Upsert(r); err != nil {
			return &Error{Op: op, Err: errors.Wrap(err, "upsert")}
		}
		s.Logger.Info().Str("email", string(email)).Msg("Subscription confirmed")
	case ActionUnsubscribe:
		if err := s.store.Delete(email); err != nil {
			return &Error{Op: op, Err: errors.Wrap(err, "delete")}
		}
		s.Logger.Info().Str("email", string(email)).Msg("Unsubscription confirmed")
	}

	return nil
}

func (s *RegistrationService) requestConfirmation(r *Registration) error {
	if err := s.store.Upsert(r); err != nil {
		return errors.Wrap(err, "upsert")
	}

	s.Logger.Info().
		Str("email", string(r.Email)).
		Str("action", string(r.ConfirmAction)).
		Msg("Requesting confirmation")
	if err := s.requester.RequestConfirmation(r.Email, r.ConfirmAction, r.ConfirmToken); err != nil {
		return errors.Wrap(err, "request confirmation")
	}

	return nil
}

// ValidateEmail checks that email is exactly one bare mailbox address
func ValidateEmail(email Email) error {
	err := validation.Validate(string(email),
		validation.Required,
		is.Email,
		validation.By(singleMailbox),
	)
	if err != nil {
		return &Error{
			Code:    EINVALID,
			Message: "Must provide exactly one valid email address.",
			Err:     err,
		}
	}

	return nil
}

func singleMailbox(value interface{}) error {
	s, _ := value.(string)
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return err
	}
	if addr.Address != s {
		return errors.New("must be a bare address")
	}

	return nil
}
