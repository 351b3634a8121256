package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"trakn-sync-service/internal/config"
	"trakn-sync-service/internal/logger"
	"trakn-sync-service/internal/mirror"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/records"
	"trakn-sync-service/internal/remote"
	"trakn-sync-service/internal/store"
	"trakn-sync-service/internal/sync"
)

type Handler struct {
	coordinator *sync.Coordinator
	records     *records.Service
	history     store.Store
	cfg         config.ServerConfig
}

func NewHandler(cfg config.ServerConfig, coordinator *sync.Coordinator, records *records.Service, history store.Store) *Handler {
	return &Handler{
		coordinator: coordinator,
		records:     records,
		history:     history,
		cfg:         cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(h.corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", h.GetSyncStatus)
			r.Get("/status/stream", h.StreamSyncStatus)
			r.Post("/force", h.ForceSync)
			r.Put("/online", h.SetOnline)
			r.Post("/operations", h.QueueOperation)
			r.Get("/queue", h.ListQueue)
			r.Delete("/queue", h.ClearQueue)
			r.Get("/history", h.GetHistory)
			r.Get("/dropped", h.GetDropped)
		})

		r.Route("/records/{table}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Put("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(h.cfg.CorsOrigins) > 0 {
			origin = ""
			for _, o := range h.cfg.CorsOrigins {
				if o == r.Header.Get("Origin") {
					origin = o
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires "Authorization: Bearer <token>" when an auth token is configured.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sync.ErrOffline):
		return http.StatusConflict
	case errors.Is(err, sync.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, sync.ErrInvalidOperation),
		errors.Is(err, queue.ErrMissingRecordID),
		errors.Is(err, remote.ErrUnknownTable),
		errors.Is(err, remote.ErrInvalidColumn):
		return http.StatusBadRequest
	case errors.Is(err, mirror.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
