package handlers

import (
	"io/fs"
	"net/http"

	"familybook/config"
	"familybook/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// bodySlack leaves room for multipart framing and text fields on top of MaxUploadSize.
const bodySlack = 1 << 20

// noListingFS serves files from fs but reports directories as missing, so
// http.FileServer never renders an index of uploads.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func SetupRouter(app App, s3PublicURL string) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(metrics.Middleware)
	mux.Use(NewSecurityHeadersMiddleware(s3PublicURL))

	// Static files and probes bypass sessions and CSRF.
	mux.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(noListingFS{http.Dir(app.Settings().StaticDir)})))
	mux.Get("/healthz", MakeHandler(app, HandleHealthz))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Group(func(r chi.Router) {
		r.Use(LimitBody(config.MaxUploadSize + bodySlack))
		r.Use(CSRFMiddleware)
		r.Use(SessionMiddleware(app))

		r.Post("/register", MakeHandler(app, HandleRegister))
		r.Post("/login", MakeHandler(app, HandleLogin))
		r.Get("/logout", MakeHandler(app, HandleLogout))

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/", MakeHandler(app, HandleFeed))
			r.Get("/posts/{postID}", MakeHandler(app, HandlePostDetail))
			r.Get("/profile/{username}", MakeHandler(app, HandleProfile))

			r.Post("/posts/create", MakeHandler(app, HandleCreatePost))
			r.Post("/posts/{postID}/comment", MakeHandler(app, HandleComment))
			r.Post("/posts/{postID}/like", MakeHandler(app, HandleLike))
			r.Post("/posts/{postID}/open", MakeHandler(app, HandleOpenGift))
			r.Post("/posts/delete/{postID}", MakeHandler(app, HandleDeletePost))
			r.Post("/update-avatar", MakeHandler(app, HandleUpdateAvatar))
			r.Post("/update-name", MakeHandler(app, HandleUpdateName))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(app))
			r.Post("/backup", MakeHandler(app, HandleDatabaseBackup))
		})
	})

	return mux
}
