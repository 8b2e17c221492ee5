package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/college-service/internal/delivery/http/handler"
	"github.com/user/college-service/internal/delivery/http/middleware"
)

// Options tunes the router.
type Options struct {
	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
}

func New(h *handler.Handler, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.MaxBodyBytes > 0 {
		r.Use(chimw.RequestSize(opts.MaxBodyBytes))
	}
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api/colleges", func(r chi.Router) {
		r.Get("/", h.HandleListColleges)
		r.Post("/", h.HandleCreateCollege)
		r.Post("/with-upload", h.HandleCreateCollegeWithUpload)
		r.Get("/{"+handler.CollegeParam+"}", h.HandleFindColleges)
		r.Put("/{"+handler.CollegeParam+"}", h.HandleUpdateCollege)
		r.Put("/{"+handler.CollegeParam+"}/with-upload", h.HandleUpdateCollegeWithUpload)
		r.Delete("/{"+handler.CollegeParam+"}", h.HandleDeleteCollege)
	})

	r.Route("/api/images", func(r chi.Router) {
		r.Post("/upload", h.HandleUploadImage)
		r.Post("/upload-buffer", h.HandleUploadImageBuffer)
	})

	r.Route("/upload", func(r chi.Router) {
		r.Post("/single", h.HandleUploadSingle)
		r.Post("/multiple", h.HandleUploadMultiple)
	})

	return r
}
