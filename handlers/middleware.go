package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"familybook/config"
	"familybook/models"
	"familybook/services"
	"familybook/utils"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	UserKey      ContextKey = "user"
	CSRFTokenKey ContextKey = "csrfToken"
)

// session is the payload of the signed session cookie.
type session struct {
	UserID int64 `json:"uid"`
}

// NewStructuredLogger logs one line per request with chi's request id.
func NewStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := utils.GetTime()
			defer func() {
				logger.Info("Request served",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", utils.GetTime().Sub(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
					"client_ip", utils.GetIPAddress(r),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// NewSecurityHeadersMiddleware sets browser hardening headers. Images may also
// come from s3PublicURL when object storage is in use.
func NewSecurityHeadersMiddleware(s3PublicURL string) func(next http.Handler) http.Handler {
	imgSrc := "'self' data:"
	if s3PublicURL != "" {
		imgSrc += " " + strings.TrimRight(s3PublicURL, "/")
	}
	csp := "default-src 'self'; img-src " + imgSrc + "; object-src 'none'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps request bodies before anything parses them.
func LimitBody(max int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFMiddleware protects against Cross-Site Request Forgery attacks.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csrfCookie, err := r.Cookie("csrf_token")
		var csrfToken string

		if err != nil || csrfCookie.Value == "" {
			csrfToken = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     "csrf_token",
				Value:    csrfToken,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			csrfToken = csrfCookie.Value
		}

		if r.Method == http.MethodPost {
			// FormValue covers both multipart and urlencoded bodies.
			tokenFromForm := r.FormValue("csrf_token")
			if tokenFromForm == "" {
				tokenFromForm = r.Header.Get("X-CSRF-Token")
			}

			if subtle.ConstantTimeCompare([]byte(tokenFromForm), []byte(csrfToken)) != 1 {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
		}

		ctx := context.WithValue(r.Context(), CSRFTokenKey, csrfToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionMiddleware resolves the session cookie to a user. A cookie that is
// forged, expired or points at a removed account is cleared.
func SessionMiddleware(app App) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(config.SessionCookieName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			var s session
			if err := app.Sessions().Decode(config.SessionCookieName, c.Value, &s); err != nil {
				app.Logger().Debug("Rejected session cookie", "error", err)
				clearCookie(w, r, config.SessionCookieName)
				next.ServeHTTP(w, r)
				return
			}

			user, err := app.Users().Get(r.Context(), s.UserID)
			if err != nil {
				if !errors.Is(err, services.ErrUserNotFound) {
					app.Logger().Error("Failed to load session user", "user_id", s.UserID, "error", err)
				}
				clearCookie(w, r, config.SessionCookieName)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the signed-in user, if any.
func currentUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(UserKey).(*models.User)
	return u, ok && u != nil
}

// viewer is the signed-in user, or the zero user for anonymous requests.
func viewer(r *http.Request) models.User {
	if u, ok := currentUser(r); ok {
		return *u
	}
	return models.User{}
}

// RequireUser sends anonymous visitors to the login page.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(r); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin restricts a route group to admins.
func RequireAdmin(app App) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := currentUser(r)
			if !ok {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			if !u.IsAdmin() {
				app.Logger().Warn("Non-admin tried to reach admin route", "user_id", u.ID, "path", r.URL.Path)
				redirect(w, r, app, "/", FlashError, "Only the head of the family can do that.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
