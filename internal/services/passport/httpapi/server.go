package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/NordCoder/Passport/internal/obs"

	"go.uber.org/zap"
)

type Options struct {
	Logger       *zap.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
	// StaticDir, when set, serves a single-page frontend from disk with
	// index.html as the fallback for unknown paths.
	StaticDir string
	Health    func(context.Context) error
}

func NewHandler(uc Identity, o Options) http.Handler {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := NewController(uc, log, o.MaxBodyBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", c.Register)
	mux.HandleFunc("POST /api/login", c.Login)
	mux.HandleFunc("POST /api/refresh", c.Refresh)
	mux.Handle("GET /api/me", RequireAccess(uc, http.HandlerFunc(c.Me)))

	health := o.Health
	if health == nil {
		health = func(context.Context) error { return nil }
	}
	obs.MountOps(mux, health)

	if o.StaticDir != "" {
		mux.HandleFunc("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no such endpoint"})
		})
		mux.Handle("GET /", spa(o.StaticDir))
	}

	var h http.Handler = mux
	h = CORS(o.CORSOrigins, h)
	h = AccessLog(log.Named("http"), h)
	return obs.HTTPHandler(h, "passport.http")
}

func spa(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if st, err := os.Stat(p); err != nil || st.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}
