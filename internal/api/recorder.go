package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/export"
	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/internal/subscriber"
	"github.com/yegors/skybridge/pkg/logger"
)

// RecorderHandler serves the recorder's read-only archive endpoints.
type RecorderHandler struct {
	store  *sqlite.Store
	worker *sqlite.Worker
	sub    *subscriber.Subscriber
	logger *logger.Logger
}

// NewRecorderServer builds the recorder HTTP server over the archive.
func NewRecorderServer(cfg config.APIConfig, log *logger.Logger, store *sqlite.Store, worker *sqlite.Worker, sub *subscriber.Subscriber) *Server {
	h := &RecorderHandler{
		store:  store,
		worker: worker,
		sub:    sub,
		logger: log.Named("api-handler"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", h.GetAllAircraft)
		r.Get("/aircraft/{address}", h.GetAircraftByAddress)
		r.Get("/aircraft/{address}/sessions", h.GetAircraftSessions)
		r.Get("/sessions/{id}/path", h.GetSessionPath)
		r.Get("/sessions/{id}/path.csv", h.GetSessionPathCSV)
		r.Get("/status", h.GetStatus)
	})

	return newServer(cfg.BindAddr, r, log)
}

type archivedAircraftResponse struct {
	Timestamp time.Time                `json:"timestamp"`
	Count     int                      `json:"count"`
	Aircraft  []sqlite.AircraftSummary `json:"aircraft"`
}

// GetAllAircraft returns every archived aircraft with its most recent
// recorded point.
func (h *RecorderHandler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	aircraft, err := h.store.AircraftSummaries()
	if err != nil {
		h.logger.Error("Failed to query aircraft", logger.Error(err))
		http.Error(w, "Failed to query aircraft", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, archivedAircraftResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(aircraft),
		Aircraft:  aircraft,
	})
}

// GetAircraftByAddress returns one archived aircraft by ICAO address.
func (h *RecorderHandler) GetAircraftByAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		http.Error(w, "Missing aircraft address", http.StatusBadRequest)
		return
	}

	aircraft, err := h.store.AircraftByAddress(address)
	if err != nil {
		h.logger.Error("Failed to query aircraft",
			logger.String("address", address),
			logger.Error(err))
		http.Error(w, "Failed to query aircraft", http.StatusInternalServerError)
		return
	}
	if aircraft == nil {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, aircraft)
}

type sessionsResponse struct {
	Timestamp time.Time        `json:"timestamp"`
	Address   string           `json:"aircraft_address"`
	Count     int              `json:"count"`
	Sessions  []sqlite.Session `json:"sessions"`
}

// GetAircraftSessions returns the flight sessions recorded for one
// aircraft, oldest first.
func (h *RecorderHandler) GetAircraftSessions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		http.Error(w, "Missing aircraft address", http.StatusBadRequest)
		return
	}

	sessions, err := h.store.SessionsByAircraft(address)
	if err != nil {
		h.logger.Error("Failed to query sessions",
			logger.String("address", address),
			logger.Error(err))
		http.Error(w, "Failed to query sessions", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, sessionsResponse{
		Timestamp: time.Now().UTC(),
		Address:   address,
		Count:     len(sessions),
		Sessions:  sessions,
	})
}

type pathResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	SessionID string             `json:"session_id"`
	Count     int                `json:"count"`
	Points    []sqlite.PathPoint `json:"points"`
}

// GetSessionPath returns the ordered track points of one flight session.
func (h *RecorderHandler) GetSessionPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	points, err := h.store.SessionPath(id)
	if err != nil {
		h.logger.Error("Failed to query session path",
			logger.String("session_id", id),
			logger.Error(err))
		http.Error(w, "Failed to query session path", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, pathResponse{
		Timestamp: time.Now().UTC(),
		SessionID: id,
		Count:     len(points),
		Points:    points,
	})
}

// GetSessionPathCSV streams the session track as a CSV attachment.
func (h *RecorderHandler) GetSessionPathCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	points, err := h.store.SessionPath(id)
	if err != nil {
		h.logger.Error("Failed to query session path",
			logger.String("session_id", id),
			logger.Error(err))
		http.Error(w, "Failed to query session path", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_path.csv", id))
	if err := export.WritePathCSV(w, points); err != nil {
		h.logger.Error("Failed to write path CSV",
			logger.String("session_id", id),
			logger.Error(err))
	}
}

type subscriberStatus struct {
	State     string `json:"state"`
	Malformed int64  `json:"malformed_snapshots"`
}

type recorderStatus struct {
	Timestamp  time.Time          `json:"timestamp"`
	Subscriber subscriberStatus   `json:"subscriber"`
	Worker     sqlite.WorkerStats `json:"worker"`
	Store      sqlite.StoreStats  `json:"store"`
}

// GetStatus reports the feed connection state, persistence counters, and
// archive totals.
func (h *RecorderHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("Failed to query store stats", logger.Error(err))
		http.Error(w, "Failed to query store stats", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, recorderStatus{
		Timestamp: time.Now().UTC(),
		Subscriber: subscriberStatus{
			State:     h.sub.State(),
			Malformed: h.sub.MalformedCount(),
		},
		Worker: h.worker.Stats(),
		Store:  stats,
	})
}
