package voice

import (
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"

	"github.com/MrWong99/callorder/internal/observe"
)

// signatureHeader carries Twilio's request signature.
const signatureHeader = "X-Twilio-Signature"

// ValidateSignature returns middleware that rejects requests whose
// X-Twilio-Signature does not match authToken with 403 Forbidden.
//
// publicURL is the externally visible base URL Twilio calls, e.g.
// "https://orders.example.com". When empty, the base URL is rebuilt from the
// request, honouring X-Forwarded-Proto.
func ValidateSignature(authToken, publicURL string) func(http.Handler) http.Handler {
	validator := client.NewRequestValidator(authToken)
	base := strings.TrimRight(publicURL, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "malformed form body", http.StatusBadRequest)
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for k, v := range r.PostForm {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}

			url := requestBase(r, base) + r.URL.RequestURI()
			if !validator.Validate(url, params, r.Header.Get(signatureHeader)) {
				observe.Logger(r.Context()).Warn("rejected request with invalid twilio signature",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestBase(r *http.Request, base string) string {
	if base != "" {
		return base
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
