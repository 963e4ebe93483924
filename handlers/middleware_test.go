package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"familybook/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginLogout(t *testing.T) {
	app, mux := setupTestApp(t)

	rr := sendForm(t, mux, "/register", url.Values{"display_name": {"Grandpa Joe"}, "password": {"chocolate"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, FlashSuccess, flashOf(t, app, rr).Category)
	registered := responseCookie(rr, config.SessionCookieName)
	require.NotNil(t, registered, "registration signs the user in")

	feed := get(t, mux, "/", registered)
	require.Equal(t, http.StatusOK, feed.Code)
	data := decodePage(t, feed)
	require.NotNil(t, data.User)
	assert.Equal(t, "Grandpa Joe", data.User.DisplayName)
	assert.NotEmpty(t, data.CSRF)

	rr = sendForm(t, mux, "/login", url.Values{"display_name": {"Grandpa Joe"}, "password": {"wrong"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, FlashError, flashOf(t, app, rr).Category)
	assert.Nil(t, responseCookie(rr, config.SessionCookieName))

	rr = sendForm(t, mux, "/login", url.Values{"display_name": {"Grandpa Joe"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, FlashError, flashOf(t, app, rr).Category)

	rr = sendForm(t, mux, "/login", url.Values{"display_name": {" Grandpa Joe "}, "password": {"chocolate"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	require.NotNil(t, responseCookie(rr, config.SessionCookieName))

	rr = get(t, mux, "/logout", registered)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	cleared := responseCookie(rr, config.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	app, mux := setupTestApp(t)

	rr := sendForm(t, mux, "/register", url.Values{"display_name": {"Shorty"}, "password": {"12"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/register", rr.Header().Get("Location"))
	f := flashOf(t, app, rr)
	assert.Equal(t, FlashError, f.Category)
	assert.Contains(t, f.Message, "Password")

	rr = sendForm(t, mux, "/register", url.Values{"display_name": {"   "}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, FlashError, flashOf(t, app, rr).Category)
	assert.Nil(t, responseCookie(rr, config.SessionCookieName))
}

func TestSessionMiddleware(t *testing.T) {
	app, mux := setupTestApp(t)
	alice := registerUser(t, app, "Alice")

	t.Run("anonymous feed redirects to login", func(t *testing.T) {
		rr := get(t, mux, "/")
		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("forged cookie is cleared", func(t *testing.T) {
		rr := get(t, mux, "/", &http.Cookie{Name: config.SessionCookieName, Value: "forged"})
		require.Equal(t, http.StatusSeeOther, rr.Code)
		cleared := responseCookie(rr, config.SessionCookieName)
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("cookie of removed user is cleared", func(t *testing.T) {
		ghost := registerUser(t, app, "Ghost")
		cookie := sessionCookie(t, app, ghost)
		_, err := app.db.DB.Exec("DELETE FROM user WHERE id = ?", ghost.ID)
		require.NoError(t, err)

		rr := get(t, mux, "/", cookie)
		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
		require.NotNil(t, responseCookie(rr, config.SessionCookieName))
	})

	t.Run("flash is shown once", func(t *testing.T) {
		rr := sendForm(t, mux, "/update-name", url.Values{"display_name": {"Aunt Alice"}}, sessionCookie(t, app, alice))
		flash := responseCookie(rr, config.FlashCookieName)
		require.NotNil(t, flash)

		rr = get(t, mux, "/", sessionCookie(t, app, alice), flash)
		require.Equal(t, http.StatusOK, rr.Code)
		data := decodePage(t, rr)
		require.NotNil(t, data.Flash)
		assert.Equal(t, FlashSuccess, data.Flash.Category)
		cleared := responseCookie(rr, config.FlashCookieName)
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})
}

func TestProfileAndPostPages(t *testing.T) {
	app, mux := setupTestApp(t)
	alice := registerUser(t, app, "Alice")
	cookie := sessionCookie(t, app, alice)

	rr := sendForm(t, mux, "/posts/create", url.Values{"content": {"First memory"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = get(t, mux, profileURL(alice.Username), cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	data := decodePage(t, rr)
	require.NotNil(t, data.Profile)
	assert.Equal(t, alice.ID, data.Profile.ID)
	require.Len(t, data.Posts, 1)
	assert.Equal(t, "First memory", data.Posts[0].Content)

	rr = get(t, mux, profileURL(alice.Username)+"?p=2", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	data = decodePage(t, rr)
	assert.Equal(t, 2, data.Page)
	assert.Empty(t, data.Posts)

	rr = get(t, mux, "/profile/user_nobody", cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, FlashError, flashOf(t, app, rr).Category)

	rr = get(t, mux, "/posts/424242", cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	assert.NotContains(t, get(t, mux, "/", cookie).Body.String(), "HashedPassword")
}

func TestSecurityHeadersAndProbes(t *testing.T) {
	_, mux := setupTestApp(t)

	rr := get(t, mux, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "img-src 'self' data:")

	rr = get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "familybook_http_requests_total")
}

func TestSecurityHeadersAllowS3Images(t *testing.T) {
	h := NewSecurityHeadersMiddleware("https://cdn.example.com/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.Contains(rr.Header().Get("Content-Security-Policy"), "img-src 'self' data: https://cdn.example.com;"))
}

func TestLimitBody(t *testing.T) {
	var readErr error
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64))))

	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, readErr, &tooLarge)
}

func TestStaticFilesWithoutListings(t *testing.T) {
	app, mux := setupTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(app.settings.PostsDir(), "kept.webp"), []byte("webp"), 0o644))

	rr := get(t, mux, "/static/uploads/posts/kept.webp")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "webp", rr.Body.String())

	for _, dir := range []string{"/static/", "/static/uploads/", "/static/uploads/posts/"} {
		rr = get(t, mux, dir)
		assert.Equal(t, http.StatusNotFound, rr.Code, dir)
		assert.NotContains(t, rr.Body.String(), "kept.webp", dir)
	}
}

func TestStructuredLoggerRecordsClientIP(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewStructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.7", entry["client_ip"])
	assert.Equal(t, "/hello", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
}
