package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/pkg/markup"
)

const relatedPostsLimit = 3

type blogPostResponse struct {
	Post    *homeletter.BlogPost  `json:"post"`
	HTML    string                `json:"html"`
	Related []homeletter.BlogPost `json:"related"`
}

func (s *Server) blogPostsHandler(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	result, err := s.BlogService.FindAll(homeletter.BlogFilter{
		Category: query.Get("category"),
		Search:   query.Get("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusOK, result)
	return nil
}

func (s *Server) blogPostHandler(w http.ResponseWriter, r *http.Request) error {
	slug := mux.Vars(r)["slug"]

	post, err := s.BlogService.FindBySlug(slug)
	if err != nil {
		return err
	}
	if post == nil {
		return NewError(nil, http.StatusNotFound, "Blog post not found")
	}

	related, err := s.BlogService.Related(post, relatedPostsLimit)
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusOK, &blogPostResponse{
		Post:    post,
		HTML:    markup.ToHTML(post.Content),
		Related: related,
	})
	return nil
}
