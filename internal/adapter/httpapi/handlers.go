package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/harborlight/relief-offline/internal/alertqueue"
	"github.com/harborlight/relief-offline/internal/domain"
)

func (s *Server) handleCacheDisasters(w http.ResponseWriter, r *http.Request) {
	events, ok := decodeBody[[]domain.DisasterEvent](w, r)
	if !ok {
		return
	}
	if err := s.cache.CacheDisasters(r.Context(), events); err != nil {
		s.cacheWriteFailed(w, "disasters", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": len(events)})
}

func (s *Server) handleGetDisasters(w http.ResponseWriter, r *http.Request) {
	events := s.cache.CachedDisasters(r.Context())
	if events == nil {
		events = []domain.DisasterEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCacheWeather(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := decodeBody[domain.WeatherSnapshot](w, r)
	if !ok {
		return
	}
	if domain.NormalizeLocation(snapshot.Location) == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	if err := s.cache.CacheWeather(r.Context(), snapshot); err != nil {
		s.cacheWriteFailed(w, "weather", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": 1})
}

func (s *Server) handleGetWeather(w http.ResponseWriter, r *http.Request) {
	location := r.PathValue("location")
	snapshot, ok := s.cache.CachedWeather(r.Context(), location)
	if !ok {
		writeError(w, http.StatusNotFound, "no fresh weather snapshot for "+location)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCacheFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, ok := decodeBody[[]domain.Facility](w, r)
	if !ok {
		return
	}
	if err := s.cache.CacheFacilities(r.Context(), facilities); err != nil {
		s.cacheWriteFailed(w, "facilities", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": len(facilities)})
}

func (s *Server) handleGetFacilities(w http.ResponseWriter, r *http.Request) {
	facilities := s.cache.CachedFacilities(r.Context())
	if facilities == nil {
		facilities = []domain.Facility{}
	}
	writeJSON(w, http.StatusOK, facilities)
}

func (s *Server) handleCacheGuidelines(w http.ResponseWriter, r *http.Request) {
	guidelines, ok := decodeBody[[]domain.Guideline](w, r)
	if !ok {
		return
	}
	if err := s.cache.CacheGuidelines(r.Context(), guidelines); err != nil {
		s.cacheWriteFailed(w, "guidelines", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": len(guidelines)})
}

func (s *Server) handleGetGuidelines(w http.ResponseWriter, r *http.Request) {
	guidelines := s.cache.CachedGuidelines(r.Context())
	if guidelines == nil {
		guidelines = []domain.Guideline{}
	}
	writeJSON(w, http.StatusOK, guidelines)
}

func (s *Server) handleGetGuideline(w http.ResponseWriter, r *http.Request) {
	disasterType := r.PathValue("type")
	guideline, ok := s.cache.CachedGuideline(r.Context(), disasterType)
	if !ok {
		writeError(w, http.StatusNotFound, "no guideline for "+disasterType)
		return
	}
	writeJSON(w, http.StatusOK, guideline)
}

func (s *Server) handleCacheTiles(w http.ResponseWriter, r *http.Request) {
	tiles, ok := decodeBody[[]domain.TileRecord](w, r)
	if !ok {
		return
	}
	for _, tile := range tiles {
		if tile.URL == "" {
			writeError(w, http.StatusBadRequest, "every tile needs a url")
			return
		}
	}
	if err := s.cache.CacheTiles(r.Context(), tiles); err != nil {
		s.cacheWriteFailed(w, "tiles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached": len(tiles)})
}

func (s *Server) handleGetTile(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	blob, ok := s.cache.CachedTile(r.Context(), url)
	if !ok {
		writeError(w, http.StatusNotFound, "tile not cached or expired")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.ClearOldCache(r.Context())
	if err != nil {
		s.logger.Error("cache sweep failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "sweep failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleSendAlert(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read alert payload: "+err.Error())
		return
	}
	if len(payload) == 0 || !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, "alert payload must be valid JSON")
		return
	}

	delivered, id, err := s.alerts.SendOrEnqueue(r.Context(), payload)
	if err != nil {
		// The store took nothing: no record of this alert exists anywhere.
		// 507 tells the dashboard to warn the user instead of pretending the
		// alert is queued.
		s.logger.Error("alert could not be queued", "error", err)
		writeError(w, http.StatusInsufficientStorage, "alert could not be stored and will not be retried")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered, "id": id})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListPending(r.Context())
	if err != nil {
		s.logger.Warn("pending alerts unavailable", "error", err)
		alerts = nil
	}
	if alerts == nil {
		alerts = []domain.PendingAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	if err := s.alerts.Remove(r.Context(), id); err != nil {
		s.logger.Error("alert remove failed", "id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not remove alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	result, err := s.alerts.Flush(r.Context(), alertqueue.TriggerManual)
	if err != nil {
		s.logger.Error("manual flush failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "flush failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	pending, err := s.alerts.PendingCount(r.Context())
	if err != nil {
		s.logger.Warn("pending count unavailable", "error", err)
		pending = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  s.conn.Online(),
		"pending": pending,
	})
}

func (s *Server) handleSetConnectivity(w http.ResponseWriter, r *http.Request) {
	report, ok := decodeBody[struct {
		Online *bool `json:"online"`
	}](w, r)
	if !ok {
		return
	}
	if report.Online == nil {
		writeError(w, http.StatusBadRequest, "online field is required")
		return
	}
	s.conn.Set(*report.Online)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	u, ok := s.usage.Usage(r.Context())
	if !ok {
		// The dashboard hides the panel when the platform cannot report.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) cacheWriteFailed(w http.ResponseWriter, what string, err error) {
	s.logger.Warn("cache write failed", "collection", what, "error", err)
	writeError(w, http.StatusServiceUnavailable, "could not write "+what+" to the offline store")
}
