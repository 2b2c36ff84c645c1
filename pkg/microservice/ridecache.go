package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/adapter"
	"github.com/illmade-knight/go-ridecache/pkg/datasets"
	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/rs/zerolog"
)

// datasetResponse is the wire shape of every dataset read. Error is set
// next to data when last-known data is served after a failed fetch.
type datasetResponse struct {
	Data      any        `json:"data"`
	Stale     bool       `json:"stale"`
	Error     string     `json:"error,omitempty"`
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
}

// RideCacheService exposes the cached datasets over HTTP for clients that
// should not talk to the ride API directly.
type RideCacheService struct {
	*BaseServer
	registry         *datasets.Registry
	suggestionsLimit int
	logger           zerolog.Logger
}

// NewRideCacheService creates the service and registers its routes.
func NewRideCacheService(httpPort string, registry *datasets.Registry, suggestionsLimit int, logger zerolog.Logger) *RideCacheService {
	s := &RideCacheService{
		BaseServer:       NewBaseServer(logger, httpPort),
		registry:         registry,
		suggestionsLimit: suggestionsLimit,
		logger:           logger.With().Str("component", "RideCacheService").Logger(),
	}
	s.mux.HandleFunc("GET /v1/locations/suggestions", s.handleSuggestions)
	s.mux.HandleFunc("GET /v1/locations/{city}", s.handleLocations)
	s.mux.HandleFunc("GET /v1/notifications/{userID}/unread", s.handleUnread)
	s.mux.HandleFunc("POST /v1/notifications/{userID}/{notificationID}/read", s.handleMarkRead)
	s.mux.HandleFunc("POST /v1/refresh/locations/{city}", s.handleRefreshLocations)
	s.mux.HandleFunc("POST /v1/refresh/suggestions", s.handleRefreshSuggestions)
	s.mux.HandleFunc("POST /v1/refresh/notifications/{userID}", s.handleRefreshUnread)
	s.mux.HandleFunc("DELETE /v1/cache", s.handleClear)
	s.SetReadinessCheck(func(context.Context) error { return registry.Ready() })
	return s
}

// Start serves HTTP in the background.
func (s *RideCacheService) Start(_ context.Context) error {
	return s.BaseServer.Start()
}

// Shutdown stops serving HTTP. The registry is owned by the caller.
func (s *RideCacheService) Shutdown(ctx context.Context) error {
	return s.BaseServer.Shutdown(ctx)
}

func (s *RideCacheService) handleLocations(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.registry.Locations(r.PathValue("city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, catalog.Read(r.Context()))
}

func (s *RideCacheService) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit := s.suggestionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sugg, err := s.registry.Suggestions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, sugg.Search(r.Context(), r.URL.Query().Get("q"), limit))
}

func (s *RideCacheService) handleUnread(w http.ResponseWriter, r *http.Request) {
	unread, err := s.registry.UnreadNotifications(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, unread.Read(r.Context()))
}

func (s *RideCacheService) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	unread, err := s.registry.UnreadNotifications(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := unread.MarkRead(r.Context(), r.PathValue("notificationID"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Mark read failed.")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeResult(w, res)
}

func (s *RideCacheService) handleRefreshLocations(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.registry.Locations(r.PathValue("city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, catalog.Refresh(r.Context()))
}

func (s *RideCacheService) handleRefreshSuggestions(w http.ResponseWriter, r *http.Request) {
	sugg, err := s.registry.Suggestions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, sugg.Refresh(r.Context()))
}

// handleClear drops every cached entry, e.g. after a bulk data fix upstream.
func (s *RideCacheService) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Clear(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear the cache.")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Msg("Cache cleared.")
	w.WriteHeader(http.StatusNoContent)
}

func (s *RideCacheService) handleRefreshUnread(w http.ResponseWriter, r *http.Request) {
	unread, err := s.registry.UnreadNotifications(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, unread.Refresh(r.Context()))
}

// writeResult renders an adapter result. A failure with no data to fall
// back on is an upstream error; stale data with an error is still a 200.
func writeResult[D any](w http.ResponseWriter, res adapter.Result[D]) {
	if res.Err != nil && !res.HasData() {
		writeError(w, statusFor(res.Err), res.Err.Error())
		return
	}
	body := datasetResponse{Data: res.Data, Stale: res.Stale}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	if !res.FetchedAt.IsZero() {
		fetchedAt := res.FetchedAt
		body.FetchedAt = &fetchedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case fetch.IsRequestError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
