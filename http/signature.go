package http

import (
	"net/http"

	"github.com/athomewithrose/homeletter/pkg/hash"
)

const signatureHeader = "X-Signature"

// requireSignature only lets through requests whose X-Signature header is the HMAC of
// the request path.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hash.ValidHmac256(r.URL.Path, r.Header.Get(signatureHeader), s.HMACSecret) {
			writeJSONResponse(w, http.StatusUnauthorized, &Error{
				Message: http.StatusText(http.StatusUnauthorized),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
