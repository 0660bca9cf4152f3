// Package campaign turns newsletter documents into delivered emails: it resolves featured
// blog posts, renders each recipient's copy and drives the send loop.
package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/athomewithrose/homeletter"
)

// Mode selects between a real send and a dry run.
type Mode int

// Send modes
const (
	ModeSend Mode = iota
	ModePreview
)

// Outcome is the final state of a send run.
type Outcome string

// Send outcomes
const (
	OutcomeSent                 Outcome = "sent"
	OutcomePartial              Outcome = "partial"
	OutcomeFailed               Outcome = "failed"
	OutcomeAlreadySent          Outcome = "already_sent"
	OutcomeNoRecipients         Outcome = "no_recipients"
	OutcomePreview              Outcome = "preview"
	OutcomeTransportUnavailable Outcome = "transport_unavailable"
	OutcomeCancelled            Outcome = "cancelled"
)

// Placeholder tokens used for copies that are not addressed to a subscriber.
const (
	PreviewToken = "preview"
	TestToken    = "test-token"
)

// Result is the tally of a send run.
type Result struct {
	Outcome Outcome                   `json:"outcome"`
	Sent    int                       `json:"sent"`
	Failed  int                       `json:"failed"`
	Total   int                       `json:"total"`
	Posts   []homeletter.BlogSummary  `json:"posts"`
	Preview *homeletter.RenderedEmail `json:"preview,omitempty"`
}

// Options configures a Sender.
type Options struct {
	BaseURL string
	// Grace is the pause between the transport check and the first email, during which
	// the run can still be cancelled.
	Grace time.Duration
	Now   func() time.Time
}

// Sender sends newsletters to the active subscribers.
type Sender struct {
	subscribers homeletter.SubscriberService
	newsletters homeletter.NewsletterService
	resolver    *Resolver
	renderer    *Renderer
	transport   homeletter.MailTransport
	logger      zerolog.Logger
	opts        Options

	// mu serialises runs so a newsletter is never delivered twice
	mu sync.Mutex
}

// NewSender returns a sender.
func NewSender(
	subscribers homeletter.SubscriberService,
	newsletters homeletter.NewsletterService,
	resolver *Resolver,
	renderer *Renderer,
	transport homeletter.MailTransport,
	logger zerolog.Logger,
	opts Options,
) *Sender {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Sender{
		subscribers: subscribers,
		newsletters: newsletters,
		resolver:    resolver,
		renderer:    renderer,
		transport:   transport,
		logger:      logger,
		opts:        opts,
	}
}

// Send delivers doc to every active subscriber, or renders a single preview copy.
// Per-recipient failures are counted, not returned. doc is marked sent when at least one
// email went out. Runs are serialised and doc is re-read from the store first, so a
// newsletter sent by a concurrent run reports OutcomeAlreadySent.
func (s *Sender) Send(ctx context.Context, doc *homeletter.Newsletter, mode Mode) (*Result, error) {
	const op = "campaign.Send"

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With().Str("newsletter", doc.ID).Logger()

	current, err := s.newsletters.FindByID(doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reload newsletter")
	}
	if current == nil {
		return nil, homeletter.Errorf(homeletter.ErrNotFound, op, "Newsletter not found")
	}
	doc = current

	if doc.Status == homeletter.StatusSent {
		logger.Warn().Msg("newsletter has already been sent")
		return &Result{Outcome: OutcomeAlreadySent}, nil
	}

	posts := s.resolver.Resolve(doc.FeaturedBlogSlugs)
	logger.Info().Int("posts", len(posts)).Msg("resolved blog posts")

	subscribers, err := s.subscribers.ActiveSubscribers()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load subscribers")
	}
	result := &Result{
		Total: len(subscribers),
		Posts: posts,
	}
	logger.Info().Int("subscribers", result.Total).Msg("loaded active subscribers")

	if len(subscribers) == 0 {
		result.Outcome = OutcomeNoRecipients
		return result, nil
	}

	if mode == ModePreview {
		preview, err := s.render(doc, posts, PreviewToken)
		if err != nil {
			return nil, err
		}
		result.Outcome = OutcomePreview
		result.Preview = preview
		return result, nil
	}

	if err := s.transport.Verify(ctx); err != nil {
		logger.Error().Err(err).Msg("mail transport is not available")
		sentry.CaptureException(err)
		result.Outcome = OutcomeTransportUnavailable
		return result, nil
	}

	if err := s.wait(ctx, logger, result.Total); err != nil {
		logger.Warn().Msg("send cancelled")
		result.Outcome = OutcomeCancelled
		return result, nil
	}

	// the loop runs to completion once started
	sendCtx := context.WithoutCancel(ctx)
	interval := s.transport.Interval()

	for i, subscriber := range subscribers {
		err := s.deliver(sendCtx, doc, posts, &subscriber)
		if err != nil {
			result.Failed++
			logger.Error().Err(err).Str("to", subscriber.Email).Msg("failed to send newsletter")
			sentry.CaptureException(err)
		} else {
			result.Sent++
			logger.Info().Str("to", subscriber.Email).Msg("sent newsletter")
		}

		if interval > 0 && i < len(subscribers)-1 {
			time.Sleep(interval)
		}
	}

	switch {
	case result.Sent == 0:
		result.Outcome = OutcomeFailed
		return result, nil
	case result.Failed > 0:
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeSent
	}

	sentAt := s.opts.Now().UTC()
	ok, err := s.newsletters.UpdateStatus(doc.ID, homeletter.StatusSent, &sentAt)
	if err != nil {
		return result, errors.Wrap(err, "failed to mark newsletter as sent")
	}
	if !ok {
		logger.Warn().Msg("newsletter disappeared before it could be marked as sent")
	} else {
		logger.Info().Time("sentAt", sentAt).Msg("newsletter marked as sent")
	}

	return result, nil
}

// SendTest sends a single copy of doc, subject prefixed with [TEST], to an operator
// address. No store is written.
func (s *Sender) SendTest(ctx context.Context, doc *homeletter.Newsletter, to string) (*Result, error) {
	posts := s.resolver.Resolve(doc.FeaturedBlogSlugs)

	email, err := s.render(doc, posts, TestToken)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: 1, Posts: posts}
	err = s.transport.Send(ctx, &homeletter.Message{
		To:      to,
		Subject: "[TEST] " + doc.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
	})
	if err != nil {
		result.Failed = 1
		result.Outcome = OutcomeFailed
		return result, errors.Wrapf(err, "failed to send test email to %s", to)
	}

	result.Sent = 1
	result.Outcome = OutcomeSent
	return result, nil
}

func (s *Sender) deliver(ctx context.Context, doc *homeletter.Newsletter, posts []homeletter.BlogSummary, subscriber *homeletter.Subscriber) error {
	email, err := s.render(doc, posts, subscriber.UnsubscribeToken)
	if err != nil {
		return err
	}

	return s.transport.Send(ctx, &homeletter.Message{
		To:      subscriber.Email,
		Subject: doc.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
	})
}

func (s *Sender) render(doc *homeletter.Newsletter, posts []homeletter.BlogSummary, token string) (*homeletter.RenderedEmail, error) {
	unsubscribeURL := homeletter.UnsubscribeURL(s.opts.BaseURL, token)
	return s.renderer.Render(doc, posts, unsubscribeURL, s.opts.BaseURL, s.opts.Now())
}

func (s *Sender) wait(ctx context.Context, logger zerolog.Logger, total int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.Grace <= 0 {
		return nil
	}

	logger.Info().
		Int("subscribers", total).
		Dur("grace", s.opts.Grace).
		Msg("ready to send, interrupt now to cancel")

	t := time.NewTimer(s.opts.Grace)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
