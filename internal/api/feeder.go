package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/geo"
	"github.com/yegors/skybridge/internal/tracker"
	"github.com/yegors/skybridge/internal/websocket"
	"github.com/yegors/skybridge/pkg/logger"
)

// FeederHandler serves the feeder's live-state endpoints.
type FeederHandler struct {
	tracker  *tracker.Tracker
	wsServer *websocket.Server
	logger   *logger.Logger
}

// NewFeederServer builds the feeder HTTP server: the WebSocket feed at
// /ws plus the live aircraft endpoints under /api/v1.
func NewFeederServer(cfg config.PublisherConfig, log *logger.Logger, trk *tracker.Tracker, ws *websocket.Server) *Server {
	h := &FeederHandler{
		tracker:  trk,
		wsServer: ws,
		logger:   log.Named("api-handler"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/ws", ws.HandleConnection)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", h.GetAllAircraft)
		r.Get("/status", h.GetStatus)
	})

	return newServer(cfg.BindAddr, r, log)
}

// liveAircraft is a tracker record annotated with the magnetic track for
// the declination at the aircraft's current position.
type liveAircraft struct {
	tracker.Record
	MagneticTrack *float64 `json:"magnetic_track"`
}

type liveAircraftResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Count     int            `json:"count"`
	Aircraft  []liveAircraft `json:"aircraft"`
}

// GetAllAircraft returns the current state of every tracked aircraft.
func (h *FeederHandler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	records := h.tracker.Records()
	now := time.Now().UTC()
	aircraft := make([]liveAircraft, 0, len(records))
	for _, rec := range records {
		la := liveAircraft{Record: rec}
		if rec.Position != nil && rec.Velocity != nil {
			altFt := 0.0
			if rec.Altitude != nil {
				altFt = float64(*rec.Altitude)
			}
			mag := geo.MagneticTrack(rec.Position.Lat, rec.Position.Lon, altFt, rec.Velocity.Track, now)
			la.MagneticTrack = &mag
		}
		aircraft = append(aircraft, la)
	}

	WriteJSON(w, http.StatusOK, liveAircraftResponse{
		Timestamp: now,
		Count:     len(aircraft),
		Aircraft:  aircraft,
	})

	h.logger.Debug("GetAllAircraft completed",
		logger.Int("aircraft_count", len(aircraft)),
		logger.Duration("duration", time.Since(start)))
}

type feederStatus struct {
	Timestamp time.Time     `json:"timestamp"`
	Tracker   tracker.Stats `json:"tracker"`
	Clients   int           `json:"clients"`
}

// GetStatus returns the decode-quality counters and feed client count.
func (h *FeederHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, feederStatus{
		Timestamp: time.Now().UTC(),
		Tracker:   h.tracker.Stats(),
		Clients:   h.wsServer.ClientCount(),
	})
}
