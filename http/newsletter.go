package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/campaign"
)

func (s *Server) newslettersHandler(w http.ResponseWriter, r *http.Request) error {
	status := homeletter.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		return NewError(nil, http.StatusBadRequest, "Unknown newsletter status")
	}

	newsletters, err := s.NewsletterService.FindAll(status)
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusOK, newsletters)
	return nil
}

func (s *Server) sendNewsletterHandler(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	doc, err := s.NewsletterService.FindByID(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return NewError(nil, http.StatusNotFound, "Newsletter not found")
	}

	mode := campaign.ModeSend
	if r.URL.Query().Get("preview") == "true" {
		mode = campaign.ModePreview
	}

	hlog.FromRequest(r).Info().Str("newsletter", id).Bool("preview", mode == campaign.ModePreview).Msg("sending newsletter")
	result, err := s.Sender.Send(r.Context(), doc, mode)
	if err != nil {
		return err
	}

	status := http.StatusOK
	switch result.Outcome {
	case campaign.OutcomeAlreadySent:
		status = http.StatusConflict
	case campaign.OutcomeTransportUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, result)
	return nil
}
