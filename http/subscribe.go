package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/athomewithrose/homeletter"
)

const (
	emailRequiredMessage   = "Email address is required"
	invalidEmailMessage    = "Please enter a valid email address"
	invalidBodyMessage     = "Invalid request body"
	subscribeErrorMessage  = "An error occurred while processing your subscription. Please try again later."
	subscribeMethodMessage = "Method not allowed. Use POST to subscribe."
)

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var req homeletter.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, invalidBodyMessage)
	}

	email := homeletter.NormalizeEmail(req.Email)
	if email == "" {
		return NewError(nil, http.StatusBadRequest, emailRequiredMessage)
	}
	if !homeletter.IsValidEmail(email) {
		return NewError(nil, http.StatusBadRequest, invalidEmailMessage)
	}

	logger := hlog.FromRequest(r)

	result, err := s.SubscriberService.AddSubscriber(email)
	if err != nil {
		if homeletter.ErrorCode(err) == homeletter.ErrInternal {
			return NewError(err, http.StatusInternalServerError, subscribeErrorMessage)
		}
		return err
	}
	logger.Info().Int("subscriber_id", result.Subscriber.ID).Bool("reactivated", result.Reactivated).Msg("subscribed")

	if s.WelcomeService != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), welcomeTimeout)
		defer cancel()

		unsubscribeURL := homeletter.UnsubscribeURL(s.SiteURL, result.Subscriber.UnsubscribeToken)
		if err := s.WelcomeService.SendWelcome(ctx, email, unsubscribeURL); err != nil {
			logger.Warn().Err(err).Msg("failed to send welcome email")
		}
	}

	writeJSONResponse(w, http.StatusCreated, &homeletter.SubscriptionResponse{
		Success: true,
		Message: result.Message,
	})

	return nil
}

func (s *Server) subscribeMethodHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusMethodNotAllowed, &homeletter.SubscriptionResponse{
		Message: subscribeMethodMessage,
	})
}
