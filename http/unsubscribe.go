package http

import (
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/athomewithrose/homeletter"
)

const (
	tokenRequiredMessage    = "Unsubscribe token is required"
	invalidTokenMessage     = "Invalid unsubscribe token format"
	unsubscribeErrorMessage = "An error occurred while processing your unsubscription. Please try again later."

	unsubscribePage = "/newsletter/unsubscribe"
)

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var req homeletter.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, invalidBodyMessage)
	}

	if req.Token == "" {
		return NewError(nil, http.StatusBadRequest, tokenRequiredMessage)
	}
	if len(req.Token) < homeletter.MinTokenLength {
		return NewError(nil, http.StatusBadRequest, invalidTokenMessage)
	}

	result, err := s.SubscriberService.RemoveSubscriber(req.Token)
	if err != nil {
		if homeletter.ErrorCode(err) == homeletter.ErrInternal {
			return NewError(err, http.StatusInternalServerError, unsubscribeErrorMessage)
		}
		return err
	}

	writeJSONResponse(w, http.StatusOK, &homeletter.SubscriptionResponse{
		Success: true,
		Message: result.Message,
	})

	return nil
}

// unsubscribeRedirectHandler serves the link embedded in emails and sends the browser
// to the unsubscribe page with the outcome in the query string.
func (s *Server) unsubscribeRedirectHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, unsubscribePage+"?error=missing_token", http.StatusTemporaryRedirect)
		return
	}

	_, err := s.SubscriberService.RemoveSubscriber(token)
	switch homeletter.ErrorCode(err) {
	case "":
		http.Redirect(w, r, unsubscribePage+"?success=true", http.StatusTemporaryRedirect)
	case homeletter.ErrInternal:
		hlog.FromRequest(r).Error().Err(err).Msg("failed to unsubscribe")
		sentry.CaptureException(err)
		http.Redirect(w, r, unsubscribePage+"?error=server_error", http.StatusTemporaryRedirect)
	default:
		http.Redirect(w, r, unsubscribePage+"?error=invalid_token", http.StatusTemporaryRedirect)
	}
}
