package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/photocore/phashcore/internal/auth"
	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
	"github.com/photocore/phashcore/internal/web/handlers"
)

// Server представляет веб-сервер приложения
type Server struct {
	cfg      *config.Config
	handlers *handlers.Handlers
	auth     *auth.Auth
	router   *chi.Mux
	http     *http.Server
}

// NewServer создает новый веб-сервер
func NewServer(cfg *config.Config, h *handlers.Handlers, authService *auth.Auth) *Server {
	s := &Server{
		cfg:      cfg,
		handlers: h,
		auth:     authService,
	}

	s.setupRoutes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	h := s.handlers

	// Публичные маршруты
	r.Get("/api/health", h.Health)
	r.Post("/api/hash", h.Hash)
	r.Post("/api/distance", h.Distance)
	r.Post("/api/hamming", h.Hamming)
	r.Get("/api/fingerprints/{checksum}", h.Fingerprint)

	// Защищенные маршруты
	r.Group(func(r chi.Router) {
		r.Use(s.auth.BasicAuth)

		r.Post("/api/scan", h.StartScan)
		r.Get("/api/scan/progress", h.ScanProgress)
		r.Get("/api/stats", h.Stats)
		r.Get("/api/fingerprints", h.ListFingerprints)
		r.Post("/api/cache/clear", h.ClearCache)
	})

	s.router = r
}

// Handler возвращает маршрутизатор
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start запускает веб-сервер и блокируется до Shutdown
func (s *Server) Start() error {
	logger.InfoLog.Infof("Starting server on http://%s", s.http.Addr)
	if !s.auth.Enabled() {
		logger.InfoLog.Warn("Admin password is not set, admin API is disabled")
	}

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger кладет запись логгера с request id в контекст и пишет итог запроса
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := logger.InfoLog.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		})

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(logger.WithLogEntry(r.Context(), entry)))

		entry.WithFields(logrus.Fields{
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start),
		}).Info("Request served")
	})
}
