// Command sendnewsletter lists, previews, tests and sends newsletter documents.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/campaign"
	"github.com/athomewithrose/homeletter/gmail"
	"github.com/athomewithrose/homeletter/jsonfile"
	"github.com/athomewithrose/homeletter/markdown"
	"github.com/athomewithrose/homeletter/sqlite"
)

const usage = `Usage: sendnewsletter [options]

Sends the latest draft newsletter to every active subscriber.

Options:
`

var rule = strings.Repeat("━", 50)

type options struct {
	id        string
	preview   bool
	list      bool
	test      bool
	help      bool
	configDir string
}

func main() {
	fs := flag.NewFlagSet("sendnewsletter", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.id, "id", "", "send the newsletter with this id")
	fs.BoolVar(&opts.preview, "preview", false, "render the newsletter without sending it")
	fs.BoolVar(&opts.list, "list", false, "list all newsletters")
	fs.BoolVar(&opts.test, "test", false, "send a single test copy to the operator address")
	fs.BoolVarP(&opts.help, "help", "h", false, "show this help")
	fs.StringVar(&opts.configDir, "config", ".", "directory containing config.yaml")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if opts.help {
		fs.Usage()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, os.Stdout)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, opts options, out io.Writer) int {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	config, err := homeletter.ReadConfig(viper.New(), opts.configDir, opts.configDir+"/config")
	if err != nil {
		logger.Error().Err(err).Msg("failed to read config")
		return 1
	}
	if level, err := zerolog.ParseLevel(config.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	if err := sentry.Init(sentry.ClientOptions{Dsn: config.Sentry.DSN}); err != nil {
		logger.Error().Err(err).Msg("sentry.Init")
		return 1
	}
	defer sentry.Flush(2 * time.Second)

	c := &cli{
		config:      config,
		logger:      logger,
		out:         out,
		newsletters: markdown.NewNewsletterService(config.Content.Newsletters, logger),
	}

	if opts.list {
		return c.list()
	}

	if err := config.CheckSharedStore(); err != nil {
		c.printf("\n%s\n\n", homeletter.ErrorMessage(err))
		return 1
	}

	db, subscribers, err := openStore(config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open subscriber store")
		return 1
	}
	defer db.Close()

	renderer, err := campaign.NewRenderer(campaign.SiteFromConfig(config))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load templates")
		return 1
	}
	blog := markdown.NewBlogService(config.Content.Blog, config.Site.Author, logger)
	c.sender = campaign.NewSender(
		subscribers,
		c.newsletters,
		campaign.NewResolver(blog, config.Site.URL, logger),
		renderer,
		gmail.NewTransport(config, logger),
		logger,
		campaign.Options{
			BaseURL: config.Site.URL,
			Grace:   config.Newsletter.Grace,
		},
	)

	doc, code := c.resolve(opts.id)
	if doc == nil {
		return code
	}

	switch {
	case opts.test:
		return c.sendTest(ctx, doc)
	case opts.preview:
		return c.preview(ctx, doc)
	default:
		return c.send(ctx, doc)
	}
}

type cli struct {
	config      *homeletter.Config
	logger      zerolog.Logger
	out         io.Writer
	newsletters homeletter.NewsletterService
	sender      *campaign.Sender
}

func (c *cli) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// resolve returns the newsletter with id, or the latest draft when id is empty. A nil
// newsletter comes with the exit code to use.
func (c *cli) resolve(id string) (*homeletter.Newsletter, int) {
	if id != "" {
		doc, err := c.newsletters.FindByID(id)
		if err != nil {
			c.logger.Error().Err(err).Str("id", id).Msg("failed to load newsletter")
			return nil, 1
		}
		if doc == nil {
			c.printf("\nNewsletter not found: %s\n", id)
			c.printf("Use --list to see available newsletters.\n\n")
			return nil, 1
		}
		return doc, 0
	}

	doc, err := c.newsletters.LatestDraft()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load newsletters")
		return nil, 1
	}
	if doc == nil {
		c.printf("\nNo draft newsletters found.\n")
		c.printf("Create a markdown file in %s to get started.\n\n", c.config.Content.Newsletters)
		return nil, 0
	}
	return doc, 0
}

func (c *cli) list() int {
	docs, err := c.newsletters.FindAll("")
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load newsletters")
		return 1
	}

	c.printf("\nAll newsletters:\n\n")
	if len(docs) == 0 {
		c.printf("  No newsletters found in %s\n\n", c.config.Content.Newsletters)
		return 0
	}

	for _, doc := range docs {
		c.printf("  [%s] %s\n", doc.Status, doc.ID)
		c.printf("     Subject: %s\n", doc.Subject)
		c.printf("     Blog posts: %d\n", len(doc.FeaturedBlogSlugs))
		if doc.ScheduledAt != nil && doc.Status == homeletter.StatusScheduled {
			c.printf("     Scheduled: %s\n", doc.ScheduledAt.Format(time.RFC1123))
		}
		if doc.SentAt != nil {
			c.printf("     Sent: %s\n", doc.SentAt.Format(time.RFC1123))
		}
		c.printf("\n")
	}

	return 0
}

func (c *cli) preview(ctx context.Context, doc *homeletter.Newsletter) int {
	result, err := c.sender.Send(ctx, doc, campaign.ModePreview)
	if err != nil {
		c.logger.Error().Err(err).Msg("preview failed")
		return 1
	}

	c.printf("\nNewsletter preview\n%s\n", rule)
	c.printf("Subject: %s\nPreview: %s\n%s\n", doc.Subject, doc.PreviewText, rule)
	if result.Preview != nil {
		c.printf("\n%s\n", result.Preview.Text)
	}
	if len(result.Posts) > 0 {
		c.printf("%s\nFeatured blog posts:\n", rule)
		for _, p := range result.Posts {
			c.printf("  * %s\n", p.Title)
		}
	}
	c.printf("%s\nStatus: %s\nID: %s\n%s\n\n", rule, doc.Status, doc.ID, rule)

	switch result.Outcome {
	case campaign.OutcomeAlreadySent:
		c.printf("This newsletter has already been sent.\n\n")
	case campaign.OutcomeNoRecipients:
		c.printf("No subscribers to send to.\n\n")
	default:
		c.printf("Would send to %d subscribers. Run without --preview to send.\n\n", result.Total)
	}

	return 0
}

func (c *cli) sendTest(ctx context.Context, doc *homeletter.Newsletter) int {
	if !c.config.SMTPConfigured() {
		c.printf("\nSMTP is not configured. Set GMAIL_USER and GMAIL_APP_PASSWORD in .env.local.\n\n")
		return 1
	}

	to := c.config.Newsletter.TestRecipient
	c.printf("\nSending test email\n")
	c.printf("Newsletter: %s\nTo: %s\n", doc.Subject, to)

	if _, err := c.sender.SendTest(ctx, doc, to); err != nil {
		c.logger.Error().Err(err).Msg("test email failed")
		c.printf("\nFailed to send test email.\n\n")
		return 1
	}

	c.printf("\nTest email sent. Check the inbox of %s\n\n", to)
	return 0
}

func (c *cli) send(ctx context.Context, doc *homeletter.Newsletter) int {
	c.printf("\nNewsletter: %s\nID: %s\nStatus: %s\n", doc.Subject, doc.ID, doc.Status)
	if !c.config.SMTPConfigured() {
		c.printf("\nSMTP is not configured, emails will be logged but not sent.\n")
	}
	if c.config.Newsletter.Grace > 0 {
		c.printf("\nPress Ctrl+C within %s to cancel.\n", c.config.Newsletter.Grace)
	}

	result, err := c.sender.Send(ctx, doc, campaign.ModeSend)
	if result == nil {
		c.logger.Error().Err(err).Msg("send failed")
		return 1
	}

	switch result.Outcome {
	case campaign.OutcomeAlreadySent:
		c.printf("\nThis newsletter has already been sent.\nUse --preview to view it, or create a new newsletter.\n\n")
		return 0
	case campaign.OutcomeNoRecipients:
		c.printf("\nNo subscribers to send to.\n\n")
		return 0
	case campaign.OutcomeTransportUnavailable:
		c.printf("\nThe mail transport is unavailable. Nothing was sent.\n\n")
		return 1
	case campaign.OutcomeCancelled:
		c.printf("\nSend cancelled. Nothing was sent.\n\n")
		return 1
	}

	c.printf("\n%s\nSummary:\n", rule)
	c.printf("   Sent:   %d\n   Failed: %d\n   Total:  %d\n%s\n\n", result.Sent, result.Failed, result.Total, rule)

	code := 0
	switch result.Outcome {
	case campaign.OutcomeSent:
		c.printf("Newsletter sent successfully!\n\n")
	case campaign.OutcomePartial:
		c.printf("Some emails failed to send. Check the logs above.\n\n")
	default:
		c.printf("Every email failed to send. The newsletter is still a %s.\n\n", doc.Status)
		code = 1
	}

	if err != nil {
		c.logger.Error().Err(err).Msg("failed to mark newsletter as sent")
		code = 1
	}

	return code
}

func openStore(config *homeletter.Config) (homeletter.Database, homeletter.SubscriberService, error) {
	switch config.DB.Type {
	case "sqlite":
		db := sqlite.NewDB(config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewSubscriberService(db), nil
	case "json", "":
		db := jsonfile.NewDB(config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, nil, err
		}
		return db, jsonfile.NewSubscriberService(db), nil
	default:
		return nil, nil, errors.Errorf("unknown db type %q", config.DB.Type)
	}
}
