package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/bolt"
	"github.com/athomewithrose/homeletter/campaign"
	"github.com/athomewithrose/homeletter/gmail"
	"github.com/athomewithrose/homeletter/http"
	"github.com/athomewithrose/homeletter/jsonfile"
	"github.com/athomewithrose/homeletter/markdown"
	"github.com/athomewithrose/homeletter/sqlite"
)

func main() {
	config, err := homeletter.ReadConfig(viper.New(), ".", "./config")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(config.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		logger.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	a := newApp(config, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		_ = a.Close()
		logger.Error().Err(err).Msg("failed to start")
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to shut down")
		os.Exit(1)
	}
}

type app struct {
	config     *homeletter.Config
	logger     zerolog.Logger
	db         homeletter.Database
	httpServer *http.Server
	scheduler  *campaign.Scheduler
}

func newApp(config *homeletter.Config, logger zerolog.Logger) *app {
	return &app{
		config:     config,
		logger:     logger,
		httpServer: http.NewServer(logger),
	}
}

func (a *app) Run(ctx context.Context) error {
	subscriberService, err := a.openStore()
	if err != nil {
		return err
	}

	config := a.config
	newsletterService := markdown.NewNewsletterService(config.Content.Newsletters, a.logger)
	blogService := markdown.NewBlogService(config.Content.Blog, config.Site.Author, a.logger)
	transport := gmail.NewTransport(config, a.logger)

	renderer, err := campaign.NewRenderer(campaign.SiteFromConfig(config))
	if err != nil {
		return err
	}
	sender := campaign.NewSender(
		subscriberService,
		newsletterService,
		campaign.NewResolver(blogService, config.Site.URL, a.logger),
		renderer,
		transport,
		a.logger,
		campaign.Options{BaseURL: config.Site.URL},
	)

	a.httpServer.Addr = config.HTTP.Addr
	a.httpServer.Domain = config.HTTP.Domain
	a.httpServer.SiteURL = config.Site.URL
	a.httpServer.HMACSecret = config.Newsletter.HMAC.Secret
	a.httpServer.SubscriberService = subscriberService
	a.httpServer.NewsletterService = newsletterService
	a.httpServer.BlogService = blogService
	a.httpServer.WelcomeService = gmail.NewWelcomeService(config, transport)
	a.httpServer.Sender = sender

	if err := a.httpServer.Open(); err != nil {
		return err
	}
	a.logger.Info().Str("url", a.httpServer.URL()).Msg("listening")

	if spec := config.Newsletter.Cron.Spec; spec != "" {
		a.scheduler, err = campaign.NewScheduler(spec, sender, newsletterService, a.logger)
		if err != nil {
			return err
		}
		a.scheduler.Start()
		a.logger.Info().Str("spec", spec).Msg("newsletter scheduler started")
	}

	return nil
}

func (a *app) openStore() (homeletter.SubscriberService, error) {
	switch a.config.DB.Type {
	case "bolt":
		db := bolt.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return bolt.NewSubscriberService(db), nil
	case "sqlite":
		db := sqlite.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return sqlite.NewSubscriberService(db), nil
	case "json", "":
		db := jsonfile.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return nil, err
		}
		a.db = db
		return jsonfile.NewSubscriberService(db), nil
	default:
		return nil, fmt.Errorf("unknown db type %q", a.config.DB.Type)
	}
}

func (a *app) Close() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	return nil
}
