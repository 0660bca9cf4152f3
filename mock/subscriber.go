package mock

import (
	"github.com/stretchr/testify/mock"

	"github.com/athomewithrose/homeletter"
)

// SubscriberService is a mock of homeletter.SubscriberService
type SubscriberService struct {
	mock.Mock
}

// AddSubscriber mocks AddSubscriber
func (m *SubscriberService) AddSubscriber(email string) (*homeletter.SubscribeResult, error) {
	args := m.Called(email)
	result, _ := args.Get(0).(*homeletter.SubscribeResult)
	return result, args.Error(1)
}

// RemoveSubscriber mocks RemoveSubscriber
func (m *SubscriberService) RemoveSubscriber(token string) (*homeletter.UnsubscribeResult, error) {
	args := m.Called(token)
	result, _ := args.Get(0).(*homeletter.UnsubscribeResult)
	return result, args.Error(1)
}

// ActiveSubscribers mocks ActiveSubscribers
func (m *SubscriberService) ActiveSubscribers() ([]homeletter.Subscriber, error) {
	args := m.Called()
	subscribers, _ := args.Get(0).([]homeletter.Subscriber)
	return subscribers, args.Error(1)
}

// FindByEmail mocks FindByEmail
func (m *SubscriberService) FindByEmail(email string) (*homeletter.Subscriber, error) {
	args := m.Called(email)
	s, _ := args.Get(0).(*homeletter.Subscriber)
	return s, args.Error(1)
}

// FindByToken mocks FindByToken
func (m *SubscriberService) FindByToken(token string) (*homeletter.Subscriber, error) {
	args := m.Called(token)
	s, _ := args.Get(0).(*homeletter.Subscriber)
	return s, args.Error(1)
}
