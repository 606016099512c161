package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/session"
	"transit-tracker/internal/timeline"
	"transit-tracker/internal/tracking"
)

// SnapshotSource is satisfied by *session.Session.
type SnapshotSource interface {
	Snapshot() (session.Snapshot, error)
}

// ViewportSetter is satisfied by *sources.ViewportFeed.
type ViewportSetter interface {
	Set(r geo.Rect)
}

// Handler serves the tracking state of one session as JSON.
type Handler struct {
	session  SnapshotSource
	viewport ViewportSetter
	log      zerolog.Logger
	now      func() time.Time
}

func NewHandler(s SnapshotSource, v ViewportSetter, logger zerolog.Logger) *Handler {
	return &Handler{
		session:  s,
		viewport: v,
		log:      logger.With().Str("component", "api").Logger(),
		now:      time.Now,
	}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type RouteResponse struct {
	SessionID     string                                       `json:"sessionId"`
	Segments      []timeline.Segment                           `json:"segments"`
	SegmentStates map[timeline.SegmentID]tracking.Connectivity `json:"segmentStates"`
	PolledAt      time.Time                                    `json:"polledAt"`
}

type VehiclesResponse struct {
	Vehicles    []tracking.Render `json:"vehicles"`
	Count       int               `json:"count"`
	FetchFailed bool              `json:"fetchFailed"`
	LastTick    time.Time         `json:"lastTick"`
}

type BannersResponse struct {
	Banners []tracking.Banner `json:"banners"`
	Count   int               `json:"count"`
}

// ViewportRequest is the body of PUT /api/viewport.
type ViewportRequest struct {
	MinLat *float64 `json:"minLat"`
	MinLon *float64 `json:"minLon"`
	MaxLat *float64 `json:"maxLat"`
	MaxLon *float64 `json:"maxLon"`
}

var errMissingCorner = errors.New("minLat, minLon, maxLat and maxLon are required")

func (req ViewportRequest) rect() (geo.Rect, error) {
	if req.MinLat == nil || req.MinLon == nil || req.MaxLat == nil || req.MaxLon == nil {
		return geo.Rect{}, errMissingCorner
	}
	r := geo.NewRect(
		geo.Coordinate{Latitude: *req.MinLat, Longitude: *req.MinLon},
		geo.Coordinate{Latitude: *req.MaxLat, Longitude: *req.MaxLon},
	)
	if r.Min.Latitude < -90 || r.Max.Latitude > 90 || r.Min.Longitude < -180 || r.Max.Longitude > 180 {
		return geo.Rect{}, errors.New("coordinates out of range")
	}
	if r.IsEmpty() {
		return geo.Rect{}, errors.New("viewport has no area")
	}
	return r, nil
}

// Router builds the chi router. metrics may be nil.
func (h *Handler) Router(allowedOrigins []string, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Get("/health", h.Health)
	r.Get("/api/route", h.GetRoute)
	r.Get("/api/vehicles", h.GetVehicles)
	r.Get("/api/banners", h.GetBanners)
	r.Put("/api/viewport", h.PutViewport)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "error",
			"timestamp": h.now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"session":   snap.SessionID,
		"state":     snap.State,
		"timestamp": h.now().UTC(),
	})
}

// GetRoute handles GET /api/route
// Returns the segments with delay applied and the per-segment connectivity.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RouteResponse{
		SessionID:     snap.SessionID,
		Segments:      snap.Segments,
		SegmentStates: snap.SegmentStates,
		PolledAt:      h.now().UTC(),
	})
}

// GetVehicles handles GET /api/vehicles
// Each vehicle appears once, either as a direct marker or as an edge indicator.
func (h *Handler) GetVehicles(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	vehicles := make([]tracking.Render, 0, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].VehicleID < vehicles[j].VehicleID })

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:    vehicles,
		Count:       len(vehicles),
		FetchFailed: snap.FetchFailed,
		LastTick:    snap.LastTick,
	})
}

// GetBanners handles GET /api/banners
func (h *Handler) GetBanners(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	banners := snap.Banners
	if banners == nil {
		banners = []tracking.Banner{}
	}
	writeJSON(w, http.StatusOK, BannersResponse{Banners: banners, Count: len(banners)})
}

// PutViewport handles PUT /api/viewport
func (h *Handler) PutViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid viewport body", Details: map[string]any{"internal": err.Error()}})
		return
	}
	rect, err := req.rect()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	h.viewport.Set(rect)
	h.log.Debug().Interface("viewport", rect).Msg("viewport updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) snapshot(w http.ResponseWriter) (session.Snapshot, bool) {
	snap, err := h.session.Snapshot()
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to read session state",
			Details: map[string]any{"internal": err.Error()},
		})
		return session.Snapshot{}, false
	}
	return snap, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
