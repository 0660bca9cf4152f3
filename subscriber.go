package homeletter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/net/idna"
)

// SubscriberService is the interface that wraps methods related to the subscriber list
type SubscriberService interface {
	AddSubscriber(email string) (*SubscribeResult, error)
	RemoveSubscriber(token string) (*UnsubscribeResult, error)
	ActiveSubscribers() ([]Subscriber, error)
	FindByEmail(email string) (*Subscriber, error)
	FindByToken(token string) (*Subscriber, error)
}

// Subscriber represents a newsletter subscriber. Records are never deleted, only
// deactivated.
type Subscriber struct {
	ID               int       `json:"id,omitempty" storm:"id,increment"`
	Email            string    `json:"email" storm:"unique"`
	UnsubscribeToken string    `json:"unsubscribeToken" storm:"unique"`
	SubscribedAt     time.Time `json:"subscribedAt"`
	IsActive         bool      `json:"isActive" storm:"index"`
}

// MinTokenLength is the shortest string accepted as an unsubscribe token.
const MinTokenLength = 10

// Subscriber store messages
const (
	MessageInvalidEmail        = "Invalid email address format"
	MessageAlreadySubscribed   = "This email is already subscribed to our newsletter"
	MessageReactivated         = "Welcome back! Your subscription has been reactivated"
	MessageSubscribed          = "Successfully subscribed to the newsletter"
	MessageInvalidToken        = "Invalid unsubscribe token"
	MessageTokenNotFound       = "Unsubscribe link is invalid or has expired"
	MessageAlreadyUnsubscribed = "You have already been unsubscribed from our newsletter"
	MessageUnsubscribed        = "You have been successfully unsubscribed from our newsletter"
)

// SubscribeResult is returned by a successful AddSubscriber call.
type SubscribeResult struct {
	Subscriber  *Subscriber
	Message     string
	Reactivated bool
}

// UnsubscribeResult is returned by a successful RemoveSubscriber call.
type UnsubscribeResult struct {
	Message             string
	AlreadyUnsubscribed bool
}

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email has the shape local@domain.tld and a domain that
// converts to a valid ASCII host name.
func IsValidEmail(email string) bool {
	if !emailRegexp.MatchString(email) {
		return false
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return false
	}

	return true
}

// ValidateToken returns an ErrInvalid error for tokens that cannot be unsubscribe tokens.
func ValidateToken(op, token string) error {
	if len(token) < MinTokenLength {
		return Errorf(ErrInvalid, op, MessageInvalidToken)
	}
	return nil
}

// NewToken returns a fresh unsubscribe token.
func NewToken() string {
	return uuid.NewV4().String()
}

// NewSubscriber returns an active subscriber for an already normalized email
func NewSubscriber(email string, now time.Time) *Subscriber {
	return &Subscriber{
		Email:            email,
		UnsubscribeToken: NewToken(),
		SubscribedAt:     now.UTC(),
		IsActive:         true,
	}
}

// Reactivate marks s active again with a new token and subscription time.
func (s *Subscriber) Reactivate(now time.Time) {
	s.IsActive = true
	s.SubscribedAt = now.UTC()
	s.UnsubscribeToken = NewToken()
}

// UnsubscribeURL returns the unsubscribe link for token.
func UnsubscribeURL(baseURL, token string) string {
	return fmt.Sprintf("%s/newsletter/unsubscribe?token=%s", baseURL, token)
}

// SubscriptionRequest is the body of the subscribe and unsubscribe endpoints
type SubscriptionRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// SubscriptionResponse is the body returned by the subscription endpoints
type SubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
