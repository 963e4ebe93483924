package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"familybook/config"
	"familybook/database"
	"familybook/media"
	"familybook/models"
	"familybook/services"
	"familybook/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testCSRF = "test-csrf-token"

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db          *database.DatabaseService
	store       *media.LocalStorage
	posts       *services.PostService
	users       *services.UserService
	rateLimiter *models.RateLimiter
	sessions    *utils.CookieCodec
	flashes     *utils.CookieCodec
	settings    *config.Settings
	logger      *slog.Logger
}

func (a *MockApplication) DB() *database.DatabaseService    { return a.db }
func (a *MockApplication) Posts() *services.PostService     { return a.posts }
func (a *MockApplication) Users() *services.UserService     { return a.users }
func (a *MockApplication) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *MockApplication) Sessions() *utils.CookieCodec     { return a.sessions }
func (a *MockApplication) Flashes() *utils.CookieCodec      { return a.flashes }
func (a *MockApplication) Settings() *config.Settings       { return a.settings }
func (a *MockApplication) Logger() *slog.Logger             { return a.logger }

// setupTestApp creates a full application stack on a temp database and temp upload dirs.
func setupTestApp(t *testing.T) (*MockApplication, *chi.Mux) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	root := t.TempDir()

	settings := &config.Settings{
		StaticDir: filepath.Join(root, "static"),
		BackupDir: filepath.Join(root, "backups"),
		SecretKey: "test-secret",
	}

	db, err := database.InitDB(filepath.Join(root, "test.db"), logger)
	require.NoError(t, err)

	store, err := media.NewLocalStorage(settings.AvatarsDir(), settings.PostsDir(), logger)
	require.NoError(t, err)

	app := &MockApplication{
		db:          db,
		store:       store,
		posts:       services.NewPostService(db, store, logger),
		users:       services.NewUserService(db, store, logger),
		rateLimiter: models.NewRateLimiter(30*time.Second, 3, time.Hour, 24*time.Hour),
		sessions:    utils.NewCookieCodec(settings.SecretKey, config.SessionMaxAge),
		flashes:     utils.NewCookieCodec(settings.SecretKey+"-flash", config.FlashMaxAge),
		settings:    settings,
		logger:      logger,
	}

	t.Cleanup(func() {
		app.rateLimiter.Stop()
		app.db.Close()
	})

	return app, SetupRouter(app, "")
}

func registerUser(t *testing.T, app *MockApplication, name string) *models.User {
	t.Helper()
	u, err := app.users.Register(context.Background(), name, "secret")
	require.NoError(t, err)
	return u
}

func seedAdmin(t *testing.T, app *MockApplication) *models.User {
	t.Helper()
	require.NoError(t, app.users.SeedAdmin(context.Background(), "admin-pass"))
	u, err := app.users.Login(context.Background(), "Head of Family", "admin-pass")
	require.NoError(t, err)
	return u
}

// sessionCookie signs a session for u the way startSession does.
func sessionCookie(t *testing.T, app *MockApplication, u *models.User) *http.Cookie {
	t.Helper()
	encoded, err := app.sessions.Encode(config.SessionCookieName, session{UserID: u.ID})
	require.NoError(t, err)
	return &http.Cookie{Name: config.SessionCookieName, Value: encoded}
}

// sendForm sends a urlencoded POST carrying a valid CSRF token.
func sendForm(t *testing.T, mux http.Handler, path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRF})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

type testFile struct {
	field, name string
	data        []byte
}

// postMultipart sends a multipart POST carrying a valid CSRF token.
func postMultipart(t *testing.T, mux http.Handler, path string, fields map[string]string, files []testFile, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("csrf_token", testCSRF))
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRF})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, mux http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

// responseCookie returns the cookie named name set on rr, or nil.
func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// flashOf decodes the flash cookie set on rr.
func flashOf(t *testing.T, app *MockApplication, rr *httptest.ResponseRecorder) Flash {
	t.Helper()
	c := responseCookie(rr, config.FlashCookieName)
	require.NotNil(t, c, "expected a flash cookie")
	var f Flash
	require.NoError(t, app.flashes.Decode(config.FlashCookieName, c.Value, &f))
	return f
}

func decodePage(t *testing.T, rr *httptest.ResponseRecorder) pageData {
	t.Helper()
	var data pageData
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data), rr.Body.String())
	return data
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
