package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/internal/geo"
	"github.com/adsbtools/skybridge/internal/realtime"
	"github.com/adsbtools/skybridge/internal/storage/sqlite"
	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/internal/websocket"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// AircraftView is one displayed position enriched for API consumers
type AircraftView struct {
	tracker.DisplayedPosition
	MagTrack *float64 `json:"mag_track,omitempty"` // Magnetic track derived from true track and local declination
	Distance *float64 `json:"distance,omitempty"`  // Distance in NM from the station
}

// AircraftResponse is the API response for the live aircraft list
type AircraftResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Count     int            `json:"count"`
	Aircraft  []AircraftView `json:"aircraft"`
}

// HistoryResponse is the API response for one aircraft's track history
type HistoryResponse struct {
	Hex     string                  `json:"hex"`
	Count   int                     `json:"count"`
	History []sqlite.PositionRecord `json:"history"`
}

// StatusResponse reports upstream connection and engine state
type StatusResponse struct {
	Upstream          realtime.ConnectionState `json:"upstream"`
	AircraftCount     int                      `json:"aircraft_count"`
	DownstreamClients int                      `json:"downstream_clients"`
}

// Handler contains the API handlers
type Handler struct {
	engine   *tracker.Engine
	upstream *realtime.Client
	storage  *sqlite.PositionStorage
	wsServer *websocket.Server
	config   *config.Config
	logger   *logger.Logger
}

// NewHandler creates a new API handler. storage may be nil when track
// history persistence is disabled.
func NewHandler(engine *tracker.Engine, upstream *realtime.Client, storage *sqlite.PositionStorage, wsServer *websocket.Server, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		upstream: upstream,
		storage:  storage,
		wsServer: wsServer,
		config:   cfg,
		logger:   log.Named("api"),
	}
}

// Routes builds the HTTP router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", h.GetAllAircraft)
		r.Get("/aircraft/{hex}", h.GetAircraft)
		r.Get("/aircraft/{hex}/history", h.GetAircraftHistory)
		r.Get("/status", h.GetStatus)

		// Naming-convention aliases used by the request-type to endpoint
		// mapping of the socket fallback path
		r.Get("/aircraft/list", h.GetAllAircraft)
		r.Get("/aircraft/get", h.GetAircraftByQuery)
		r.Get("/aircraft/history", h.GetHistoryByQuery)
		r.Get("/status/get", h.GetStatus)
	})

	r.Get("/ws", h.wsServer.HandleConnection)

	return r
}

// GetAllAircraft returns the current displayed aircraft set
func (h *Handler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	response := h.buildAircraftResponse()
	h.writeJSON(w, http.StatusOK, response)
}

// GetAircraft returns one displayed aircraft by hex path parameter
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	h.respondAircraft(w, chi.URLParam(r, "hex"))
}

// GetAircraftByQuery returns one displayed aircraft by hex query parameter
func (h *Handler) GetAircraftByQuery(w http.ResponseWriter, r *http.Request) {
	h.respondAircraft(w, r.URL.Query().Get("hex"))
}

func (h *Handler) respondAircraft(w http.ResponseWriter, hex string) {
	pos, ok := h.engine.Displayed(hex)
	if !ok {
		h.writeError(w, http.StatusNotFound, "aircraft not found: "+tracker.CanonicalHex(hex))
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrich(pos))
}

// GetAircraftHistory returns persisted track history by hex path parameter
func (h *Handler) GetAircraftHistory(w http.ResponseWriter, r *http.Request) {
	h.respondHistory(w, chi.URLParam(r, "hex"), r.URL.Query().Get("limit"))
}

// GetHistoryByQuery returns persisted track history by hex query parameter
func (h *Handler) GetHistoryByQuery(w http.ResponseWriter, r *http.Request) {
	h.respondHistory(w, r.URL.Query().Get("hex"), r.URL.Query().Get("limit"))
}

func (h *Handler) respondHistory(w http.ResponseWriter, hex, limitStr string) {
	if h.storage == nil {
		h.writeError(w, http.StatusNotImplemented, "track history persistence is disabled")
		return
	}

	limit := 0
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit: "+limitStr)
			return
		}
		limit = parsed
	}

	records, err := h.storage.History(hex, limit)
	if err != nil {
		h.logger.Error("Failed to query track history",
			logger.Error(err),
			logger.String("hex", hex))
		h.writeError(w, http.StatusInternalServerError, "failed to query track history")
		return
	}

	h.writeJSON(w, http.StatusOK, HistoryResponse{
		Hex:     tracker.CanonicalHex(hex),
		Count:   len(records),
		History: records,
	})
}

// GetStatus returns upstream connection state and aggregate counts
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.buildStatus())
}

func (h *Handler) buildStatus() StatusResponse {
	return StatusResponse{
		Upstream:          h.upstream.State(),
		AircraftCount:     h.engine.Count(),
		DownstreamClients: h.wsServer.ClientCount(),
	}
}

func (h *Handler) buildAircraftResponse() AircraftResponse {
	displayed := h.engine.DisplayedAll()
	views := make([]AircraftView, 0, len(displayed))
	for _, pos := range displayed {
		views = append(views, h.enrich(pos))
	}

	return AircraftResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(views),
		Aircraft:  views,
	}
}

// enrich adds magnetic track and station distance to a displayed position
func (h *Handler) enrich(pos tracker.DisplayedPosition) AircraftView {
	view := AircraftView{DisplayedPosition: pos}

	if pos.Track != nil {
		alt := 0.0
		if pos.AltBaro != nil {
			alt = *pos.AltBaro
		}
		magTrack := geo.TrueToMagnetic(*pos.Track, pos.Lat, pos.Lon, alt, time.Now())
		view.MagTrack = &magTrack
	}

	station := h.config.Station
	if station.Latitude != 0 || station.Longitude != 0 {
		distNM := geo.MetersToNM(geo.Haversine(pos.Lat, pos.Lon, station.Latitude, station.Longitude))
		view.Distance = &distNM
	}

	return view
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
