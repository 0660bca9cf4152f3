package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/athomewithrose/homeletter"
)

// NewsletterService is a mock of homeletter.NewsletterService
type NewsletterService struct {
	mock.Mock
}

// FindAll mocks FindAll
func (m *NewsletterService) FindAll(status homeletter.Status) ([]homeletter.Newsletter, error) {
	args := m.Called(status)
	newsletters, _ := args.Get(0).([]homeletter.Newsletter)
	return newsletters, args.Error(1)
}

// FindByID mocks FindByID
func (m *NewsletterService) FindByID(id string) (*homeletter.Newsletter, error) {
	args := m.Called(id)
	n, _ := args.Get(0).(*homeletter.Newsletter)
	return n, args.Error(1)
}

// LatestDraft mocks LatestDraft
func (m *NewsletterService) LatestDraft() (*homeletter.Newsletter, error) {
	args := m.Called()
	n, _ := args.Get(0).(*homeletter.Newsletter)
	return n, args.Error(1)
}

// UpdateStatus mocks UpdateStatus
func (m *NewsletterService) UpdateStatus(id string, status homeletter.Status, sentAt *time.Time) (bool, error) {
	args := m.Called(id, status, sentAt)
	return args.Bool(0), args.Error(1)
}

// MailTransport is a mock of homeletter.MailTransport
type MailTransport struct {
	mock.Mock
}

// Send mocks Send
func (m *MailTransport) Send(ctx context.Context, msg *homeletter.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Verify mocks Verify
func (m *MailTransport) Verify(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Interval mocks Interval
func (m *MailTransport) Interval() time.Duration {
	args := m.Called()
	d, _ := args.Get(0).(time.Duration)
	return d
}

// WelcomeService is a mock of homeletter.WelcomeService
type WelcomeService struct {
	mock.Mock
}

// SendWelcome mocks SendWelcome
func (m *WelcomeService) SendWelcome(ctx context.Context, to, unsubscribeURL string) error {
	args := m.Called(ctx, to, unsubscribeURL)
	return args.Error(0)
}
