// familybook/handlers/render.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"familybook/config"
	"familybook/database"
	"familybook/media"
	"familybook/services"
)

// Flash categories understood by the front end.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message carried to the next page in a signed cookie.
type Flash struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// setFlash stores msg for the next request. Encoding failures only lose the message.
func setFlash(w http.ResponseWriter, r *http.Request, app App, category, msg string) {
	encoded, err := app.Flashes().Encode(config.FlashCookieName, Flash{Message: msg, Category: category})
	if err != nil {
		app.Logger().Error("Failed to encode flash message", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     config.FlashCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(config.FlashMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash message, if any, and clears the cookie.
func popFlash(w http.ResponseWriter, r *http.Request, app App) *Flash {
	c, err := r.Cookie(config.FlashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	clearCookie(w, r, config.FlashCookieName)

	var f Flash
	if err := app.Flashes().Decode(config.FlashCookieName, c.Value, &f); err != nil {
		app.Logger().Debug("Discarding unreadable flash cookie", "error", err)
		return nil
	}
	return &f
}

func clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirect answers with 303 See Other and a flash message.
func redirect(w http.ResponseWriter, r *http.Request, app App, target, category, msg string) {
	if msg != "" {
		setFlash(w, r, app, category, msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// profileURL is the page of the user with the given handle.
func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username)
}

// userMessage turns a service error into text that is safe to show. Unknown
// errors become fallback.
func userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, services.ErrPostNotFound), errors.Is(err, database.ErrNotFound):
		return "That post no longer exists."
	case errors.Is(err, services.ErrUserNotFound):
		return "That family member could not be found."
	case errors.Is(err, services.ErrInvalidCredentials):
		return "The family does not recognize that name and password."
	case errors.Is(err, media.ErrNormalize):
		return "That file could not be read as an image. Try another one."
	case errors.Is(err, services.ErrInvalidInput):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	default:
		return fallback
	}
}
