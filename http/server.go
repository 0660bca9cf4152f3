package http

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/campaign"
)

const (
	shutdownTimeout = 1 * time.Second
	welcomeTimeout  = 15 * time.Second
)

// Server represents HTTP server
type Server struct {
	ln     net.Listener
	server *http.Server
	router *mux.Router
	logger zerolog.Logger

	Addr   string
	Domain string

	// SiteURL is the public website address used in unsubscribe links
	SiteURL string
	// HMACSecret signs requests to the operator endpoints
	HMACSecret string

	SubscriberService homeletter.SubscriberService
	NewsletterService homeletter.NewsletterService
	BlogService       homeletter.BlogService
	WelcomeService    homeletter.WelcomeService
	Sender            *campaign.Sender
}

// NewServer create new HTTP server
func NewServer(logger zerolog.Logger) *Server {
	s := &Server{
		server: &http.Server{},
		router: mux.NewRouter().StrictSlash(true),
		logger: logger,
	}

	s.router.Use(hlog.NewHandler(logger))
	s.router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	s.router.Use(hlog.UserAgentHandler("user_agent"))
	s.router.Use(hlog.RefererHandler("referer"))
	s.router.Use(hlog.RequestIDHandler("req_id", "Request-Id"))

	sentryHandler := sentryhttp.New(sentryhttp.Options{})
	s.router.Use(sentryHandler.Handle)

	s.server.Handler = http.HandlerFunc(s.serveHTTP)

	s.router.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/api/newsletter/subscribe", s.Error(s.subscribeHandler)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/newsletter/subscribe", s.subscribeMethodHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/newsletter/unsubscribe", s.Error(s.unsubscribeHandler)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/newsletter/unsubscribe", s.unsubscribeRedirectHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/api/blog", s.Error(s.blogPostsHandler)).Methods(http.MethodGet)
	s.router.HandleFunc("/api/blog/{slug}", s.Error(s.blogPostHandler)).Methods(http.MethodGet)

	s.router.Handle("/api/newsletters", s.requireSignature(s.Error(s.newslettersHandler))).Methods(http.MethodGet)
	s.router.Handle("/api/newsletters/{id}/send", s.requireSignature(s.Error(s.sendNewsletterHandler))).Methods(http.MethodPost)

	return s
}

// Scheme returns scheme
func (s *Server) Scheme() string {
	if s.UseTLS() {
		return "https"
	}
	return "http"
}

// UseTLS checks if server use TLS or not
func (s *Server) UseTLS() bool {
	return s.Domain != ""
}

// Port returns server port
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns server URL
func (s *Server) URL() string {
	scheme, port := s.Scheme(), s.Port()

	domain := "localhost"
	if s.Domain != "" {
		domain = s.Domain
	}

	if port == 80 || port == 443 || flag.Lookup("test.v") != nil {
		return fmt.Sprintf("%s://%s", scheme, domain)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, domain, s.Port())
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Open opens a connection to HTTP server
func (s *Server) Open() (err error) {
	s.ln, err = net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Errorf("failed to listen to port %s: %v", s.Addr, err)
	}

	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	return nil
}

// Close shutdowns HTTP server
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
