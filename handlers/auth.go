package handlers

import (
	"errors"
	"net/http"

	"familybook/config"
	"familybook/models"
	"familybook/services"
	"familybook/utils"
)

// startSession issues the signed session cookie for u.
func startSession(w http.ResponseWriter, r *http.Request, app App, u *models.User) error {
	encoded, err := app.Sessions().Encode(config.SessionCookieName, session{UserID: u.ID})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// HandleRegister creates an account and signs it in straight away.
func HandleRegister(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRegister")
	form := credentialsFrom(r)
	if err := bind(form); err != nil {
		redirect(w, r, app, "/register", FlashError, "Enter a name and a password.")
		return
	}

	u, err := app.Users().Register(r.Context(), form.DisplayName, form.Password)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidInput) {
			logger.Error("Failed to register user", "error", err)
		}
		redirect(w, r, app, "/register", FlashError, userMessage(err, "Registration failed. Please try again."))
		return
	}

	if err := startSession(w, r, app, u); err != nil {
		logger.Error("Failed to start session", "user_id", u.ID, "error", err)
		redirect(w, r, app, "/login", FlashInfo, "Your account is ready. Please sign in.")
		return
	}
	redirect(w, r, app, "/", FlashSuccess, "Welcome to the family, "+u.DisplayName+"!")
}

// HandleLogin signs in by display name and password.
func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleLogin")
	form := credentialsFrom(r)
	if err := bind(form); err != nil {
		redirect(w, r, app, "/login", FlashError, "Enter your name and password.")
		return
	}

	u, err := app.Users().Login(r.Context(), form.DisplayName, form.Password)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			logger.Error("Login failed", "error", err)
		} else {
			logger.Info("Rejected login", "display_name", form.DisplayName, "client_ip", utils.GetIPAddress(r))
		}
		redirect(w, r, app, "/login", FlashError, userMessage(err, "Sign in failed. Please try again."))
		return
	}

	if err := startSession(w, r, app, u); err != nil {
		logger.Error("Failed to start session", "user_id", u.ID, "error", err)
		redirect(w, r, app, "/login", FlashError, "Sign in failed. Please try again.")
		return
	}
	redirect(w, r, app, "/", FlashSuccess, "Good to see you, "+u.DisplayName+"!")
}

// HandleLogout drops the session cookie.
func HandleLogout(w http.ResponseWriter, r *http.Request, app App) {
	clearCookie(w, r, config.SessionCookieName)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
