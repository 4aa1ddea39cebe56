// Package mock provides testify mocks of the postbox collaborators.
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/quantonganh/postbox"
)

// Storage mocks postbox.Storage and postbox.SubscriberStore
type Storage struct {
	mock.Mock
}

func (m *Storage) Upsert(r *postbox.Registration) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *Storage) Find(email postbox.Email) (*postbox.Registration, error) {
	args := m.Called(email)
	r, _ := args.Get(0).(*postbox.Registration)
	return r, args.Error(1)
}

func (m *Storage) Delete(email postbox.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *Storage) LastSeen() (*time.Time, error) {
	args := m.Called()
	t, _ := args.Get(0).(*time.Time)
	return t, args.Error(1)
}

func (m *Storage) SetLastSeen(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *Storage) ActiveSubscribers() ([]postbox.Registration, error) {
	args := m.Called()
	rs, _ := args.Get(0).([]postbox.Registration)
	return rs, args.Error(1)
}

func (m *Storage) DropUnconfirmed(before time.Time) (int, error) {
	args := m.Called(before)
	return args.Int(0), args.Error(1)
}

// ConfirmationRequester mocks postbox.ConfirmationRequester
type ConfirmationRequester struct {
	mock.Mock
}

func (m *ConfirmationRequester) RequestConfirmation(email postbox.Email, action postbox.Action, token postbox.Token) error {
	args := m.Called(email, action, token)
	return args.Error(0)
}

// TokenGenerator mocks postbox.TokenGenerator
type TokenGenerator struct {
	mock.Mock
}

func (m *TokenGenerator) NextToken() (postbox.Token, error) {
	args := m.Called()
	t, _ := args.Get(0).(postbox.Token)
	return t, args.Error(1)
}

// Consumer mocks postbox.Consumer
type Consumer struct {
	mock.Mock
}

func (m *Consumer) Consume(item postbox.FeedItem) error {
	args := m.Called(item)
	return args.Error(0)
}

// RegistrationService mocks the HTTP server's view of postbox.RegistrationService
type RegistrationService struct {
	mock.Mock
}

func (m *RegistrationService) Subscribe(email postbox.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *RegistrationService) Unsubscribe(email postbox.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *RegistrationService) Confirm(email postbox.Email, token postbox.Token) error {
	args := m.Called(email, token)
	return args.Error(0)
}

// QueueService mocks postbox.QueueService
type QueueService struct {
	mock.Mock
}

func (m *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	args := m.Called(ctx, topic, body)
	return args.Error(0)
}

func (m *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	args := m.Called(ctx, topic)
	ch, _ := args.Get(0).(<-chan []byte)
	return ch, args.Error(1)
}

func (m *QueueService) Close() error {
	args := m.Called()
	return args.Error(0)
}
