package homeletter

import (
	"context"
	"time"
)

// NewsletterService is the interface that wraps methods related to newsletter documents
type NewsletterService interface {
	// FindAll returns newsletters newest first. An empty status matches every document.
	FindAll(status Status) ([]Newsletter, error)
	FindByID(id string) (*Newsletter, error)
	LatestDraft() (*Newsletter, error)
	// UpdateStatus reports false when no document has the given id.
	UpdateStatus(id string, status Status, sentAt *time.Time) (bool, error)
}

// Status is the lifecycle state of a newsletter
type Status string

// Newsletter status
const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSent:
		return true
	}
	return false
}

// Newsletter is a single issue: display fields, a markdown message and send state.
type Newsletter struct {
	ID                string     `json:"id"`
	Subject           string     `json:"subject"`
	PreviewText       string     `json:"previewText"`
	Salutation        string     `json:"salutation"`
	Message           string     `json:"message"`
	SignOff           string     `json:"signOff"`
	Signature         string     `json:"signature"`
	FeaturedBlogSlugs []string   `json:"featuredBlogSlugs"`
	Status            Status     `json:"status"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Message is a fully rendered email addressed to one recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// RenderedEmail holds both bodies of a rendered newsletter
type RenderedEmail struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// MailTransport delivers rendered emails.
type MailTransport interface {
	Send(ctx context.Context, m *Message) error
	// Verify checks that the transport can deliver before a bulk send starts.
	Verify(ctx context.Context) error
	// Interval is the pause between two consecutive sends.
	Interval() time.Duration
}

// WelcomeService sends the email that greets a new subscriber.
type WelcomeService interface {
	SendWelcome(ctx context.Context, to, unsubscribeURL string) error
}
