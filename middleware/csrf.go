package middleware

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"moviecatalog/forms"
)

const (
	CSRFHeader     = "X-CSRFToken"
	CSRFField      = "csrf_token"
	CSRFCookieName = "csrf_cookie"
)

// CSRF wraps a handler so unsafe methods need a token issued by
// csrf.Token. Requests that arrived without TLS skip the referer check,
// which gorilla/csrf applies to HTTPS only.
func CSRF(secret string, secureCookie bool, log *zap.Logger) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte(secret))

	protect := csrf.Protect(key[:],
		csrf.Secure(secureCookie),
		csrf.HttpOnly(true),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.CookieName(CSRFCookieName),
		csrf.RequestHeader(CSRFHeader),
		csrf.FieldName(CSRFField),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := csrf.FailureReason(r)
			log.Warn("CSRF check failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(reason))

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string][]forms.FieldError{
				"errors": {{Field: CSRFField, Message: "The CSRF token is missing or invalid"}},
			})
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}
