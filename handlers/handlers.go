// familybook/handlers/handlers.go

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"familybook/config"
	"familybook/database"
	"familybook/models"
	"familybook/services"
	"familybook/utils"

	"github.com/go-chi/chi/v5"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	DB() *database.DatabaseService
	Posts() *services.PostService
	Users() *services.UserService
	RateLimiter() *models.RateLimiter
	Sessions() *utils.CookieCodec
	Flashes() *utils.CookieCodec
	Settings() *config.Settings
	Logger() *slog.Logger
}

// MakeHandler adapts an App-aware handler to http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// pageData is the envelope of every JSON page.
type pageData struct {
	User    *models.User  `json:"user,omitempty"`
	Flash   *Flash        `json:"flash,omitempty"`
	CSRF    string        `json:"csrf_token,omitempty"`
	Page    int           `json:"page,omitempty"`
	Profile *models.User  `json:"profile,omitempty"`
	Post    *models.Post  `json:"post,omitempty"`
	Posts   []models.Post `json:"posts"`
}

func newPageData(w http.ResponseWriter, r *http.Request, app App) pageData {
	data := pageData{Flash: popFlash(w, r, app)}
	if u, ok := currentUser(r); ok {
		data.User = u
	}
	if token, ok := r.Context().Value(CSRFTokenKey).(string); ok {
		data.CSRF = token
	}
	return data
}

// postIDParam parses {postID}; ok is false when it is not a positive integer.
func postIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	return id, err == nil && id > 0
}

// pageParam reads ?p, defaulting to the first page.
func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("p"))
	if page < 1 {
		return 1
	}
	return page
}

// HandleFeed serves the newest posts, one page at a time (?p=2).
func HandleFeed(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleFeed")
	page := pageParam(r)

	posts, err := app.Posts().Feed(r.Context(), viewer(r), page)
	if err != nil {
		logger.Error("Failed to load feed", "page", page, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Could not load the family book."}, app)
		return
	}

	data := newPageData(w, r, app)
	data.Page = page
	data.Posts = posts
	respondJSON(w, http.StatusOK, data, app)
}

// HandlePostDetail serves one post with its comments.
func HandlePostDetail(w http.ResponseWriter, r *http.Request, app App) {
	postID, ok := postIDParam(r)
	if !ok {
		redirect(w, r, app, "/", FlashError, "That post no longer exists.")
		return
	}

	post, err := app.Posts().Get(r.Context(), postID, viewer(r))
	if err != nil {
		if !errors.Is(err, services.ErrPostNotFound) {
			app.Logger().Error("Failed to load post", "handler", "HandlePostDetail", "post_id", postID, "error", err)
		}
		redirect(w, r, app, "/", FlashError, userMessage(err, "Could not load that post."))
		return
	}

	data := newPageData(w, r, app)
	data.Post = post
	respondJSON(w, http.StatusOK, data, app)
}

// HandleProfile serves a user's card and their posts, one page at a time (?p=2).
func HandleProfile(w http.ResponseWriter, r *http.Request, app App) {
	username := chi.URLParam(r, "username")
	page := pageParam(r)
	profile, posts, err := app.Posts().ByAuthor(r.Context(), username, viewer(r), page)
	if err != nil {
		if !errors.Is(err, services.ErrUserNotFound) {
			app.Logger().Error("Failed to load profile", "handler", "HandleProfile", "username", username, "error", err)
		}
		redirect(w, r, app, "/", FlashError, userMessage(err, "Could not load that profile."))
		return
	}

	data := newPageData(w, r, app)
	data.Page = page
	data.Profile = profile
	data.Posts = posts
	respondJSON(w, http.StatusOK, data, app)
}

// HandleHealthz reports whether the database answers.
func HandleHealthz(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.DB().DB.PingContext(r.Context()); err != nil {
		app.Logger().Error("Health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": config.AppVersion}, app)
}
