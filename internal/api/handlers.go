package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/geo"
	"github.com/CES-Eats-2026/cesfront/internal/recommend"
	"github.com/CES-Eats-2026/cesfront/internal/trending"
	"github.com/CES-Eats-2026/cesfront/internal/venue"
)

const maxBodyBytes = 8 << 20

// ClientConfig is the static configuration handed to the browser UI.
type ClientConfig struct {
	MapsAPIKey string          `json:"mapsApiKey"`
	Origin     geo.Location    `json:"origin"`
	Region     geo.BoundingBox `json:"region"`
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	sessions SessionManager
	feedback FeedbackSubmitter
	client   ClientConfig
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(sessions SessionManager, feedback FeedbackSubmitter, client ClientConfig, log *slog.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		feedback: feedback,
		client:   client,
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst. An empty body is accepted when optional.
func decode(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

// session resolves {id}; it writes a 404 and returns nil for unknown ids.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *recommend.Session {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return s
}

// fetchFailed maps a fetch outcome onto a response. It reports whether a
// response was written. A superseded response is not a failure.
func (h *Handlers) fetchFailed(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil, errors.Is(err, recommend.ErrSuperseded):
		return false
	case errors.Is(err, recommend.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, recommend.ErrNoOrigin):
		writeError(w, http.StatusConflict, "origin not set")
	default:
		writeError(w, http.StatusBadGateway, recommend.UserMessage(err))
	}
	return true
}

// GetClientConfig handles GET /api/v1/config.
func (h *Handlers) GetClientConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.client)
}

type createSessionRequest struct {
	ClientID  string   `json:"clientId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CreateSession handles POST /api/v1/sessions.
// The session is returned even when the first fetch failed; its view then
// carries the error state and the banner message.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := decode(r, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := recommend.CreateRequest{ClientID: body.ClientID}
	if body.Latitude != nil && body.Longitude != nil {
		req.GPS = &geo.Location{Latitude: *body.Latitude, Longitude: *body.Longitude}
	}

	s, err := h.sessions.Create(r.Context(), req)
	if s == nil {
		h.log.Error("session create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if err != nil {
		h.log.Warn("session created without recommendations", "session", s.ID(), "err", err)
	}

	writeJSON(w, http.StatusCreated, s.View())
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateParamsRequest struct {
	Origin         *geo.Location `json:"origin"`
	TimeOption     *int          `json:"timeOption"`
	DistanceMeters *float64      `json:"distanceMeters"`
	Type           *string       `json:"type"`
}

// UpdateParams handles PUT /api/v1/sessions/{id}/params.
// All fields are optional; one fetch runs if anything changed.
func (h *Handlers) UpdateParams(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	var body updateParamsRequest
	if err := decode(r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.TimeOption != nil && *body.TimeOption < 0 {
		writeError(w, http.StatusBadRequest, "timeOption must not be negative")
		return
	}

	u := recommend.Update{
		Origin:            body.Origin,
		TimeOptionMinutes: body.TimeOption,
		DistanceMeters:    body.DistanceMeters,
	}
	if body.Type != nil {
		t, err := venue.ParseFilter(*body.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		u.Type = &t
	}

	if h.fetchFailed(w, s.Apply(r.Context(), u)) {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Refresh handles POST /api/v1/sessions/{id}/refresh, the retry affordance
// of the error banner.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if h.fetchFailed(w, s.TriggerFetch(r.Context())) {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

type venueList struct {
	Venues    []venue.Venue `json:"venues"`
	Total     int           `json:"total"`
	Filtered  int           `json:"filtered"`
	Displayed int           `json:"displayed"`
	HasMore   bool          `json:"hasMore"`
}

func listOf(s *recommend.Session) venueList {
	v := s.View()
	return venueList{
		Venues:    s.Displayed(),
		Total:     v.Total,
		Filtered:  v.Filtered,
		Displayed: v.Displayed,
		HasMore:   v.Displayed < v.Filtered,
	}
}

// ListVenues handles GET /api/v1/sessions/{id}/venues.
func (h *Handlers) ListVenues(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, listOf(s))
}

// LoadMore handles POST /api/v1/sessions/{id}/venues/more.
func (h *Handlers) LoadMore(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.LoadMore()
	writeJSON(w, http.StatusOK, listOf(s))
}

// DiscoverVenue handles POST /api/v1/sessions/{id}/venues.
// 201 when the venue was appended, 200 when its id was already listed.
func (h *Handlers) DiscoverVenue(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	var v venue.Venue
	if err := decode(r, &v, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(v.ID) == "" {
		writeError(w, http.StatusBadRequest, "venue id is required")
		return
	}

	status := http.StatusOK
	if s.Discover(v) {
		status = http.StatusCreated
	}
	writeJSON(w, status, listOf(s))
}

type selectRequest struct {
	VenueID string `json:"venueId"`
}

type selection struct {
	Venue         *venue.Venue `json:"venue"`
	DirectionsURL string       `json:"directionsUrl"`
	Type          venue.Type   `json:"type"`
}

// Select handles PUT /api/v1/sessions/{id}/selection.
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	var body selectRequest
	if err := decode(r, &body, false); err != nil || body.VenueID == "" {
		writeError(w, http.StatusBadRequest, "venueId is required")
		return
	}

	v, err := s.SelectByID(r.Context(), body.VenueID)
	switch {
	case errors.Is(err, recommend.ErrVenueNotFound):
		writeError(w, http.StatusNotFound, "venue not found")
		return
	case errors.Is(err, recommend.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		h.log.Error("select failed", "venue", body.VenueID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, selection{
		Venue:         v,
		DirectionsURL: geo.DirectionsURL(v.Latitude, v.Longitude),
		Type:          s.View().Params.Type,
	})
}

// ClearSelection handles DELETE /api/v1/sessions/{id}/selection.
func (h *Handlers) ClearSelection(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	_, _ = s.Select(r.Context(), nil)
	w.WriteHeader(http.StatusNoContent)
}

// SetMapPin handles PUT /api/v1/sessions/{id}/pin.
func (h *Handlers) SetMapPin(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	var loc geo.Location
	if err := decode(r, &loc, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.SetMapPin(loc)
	writeJSON(w, http.StatusOK, s.View())
}

// GetTrending handles GET /api/v1/sessions/{id}/trending.
func (h *Handlers) GetTrending(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	entries := s.Trending(r.Context())
	if entries == nil {
		entries = []trending.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trending": entries})
}

type ragRequest struct {
	Preference string `json:"preference"`
}

// AskRAG handles POST /api/v1/sessions/{id}/rag.
func (h *Handlers) AskRAG(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	var body ragRequest
	if err := decode(r, &body, false); err != nil || strings.TrimSpace(body.Preference) == "" {
		writeError(w, http.StatusBadRequest, "preference is required")
		return
	}

	res, err := s.AskRAG(r.Context(), body.Preference)
	if errors.Is(err, recommend.ErrNoOrigin) {
		writeError(w, http.StatusConflict, "origin not set")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to get recommendations for your request")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitFeedback handles POST /api/v1/feedback.
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var f backend.Feedback
	if err := decode(r, &f, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(f.Feedback) == "" {
		writeError(w, http.StatusBadRequest, "feedback text is required")
		return
	}

	if err := h.feedback.Submit(r.Context(), f); err != nil {
		h.log.Error("feedback submit failed", "err", err)
		writeError(w, http.StatusBadGateway, "failed to submit feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Directions handles GET /api/v1/directions?lat=&lng=.
func (h *Handlers) Directions(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": geo.DirectionsURL(lat, lng)})
}

// HealthHandlerFunc returns an http.HandlerFunc that pings every configured
// state backend. No pingers means in-memory mode, which is always healthy.
func HealthHandlerFunc(pingers map[string]Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		for name, p := range pingers {
			body[name] = "ok"
			if err := p.Ping(ctx); err != nil {
				log.Error("health check: ping failed", "dependency", name, "err", err)
				body[name] = "error"
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}

		writeJSON(w, status, body)
	}
}
