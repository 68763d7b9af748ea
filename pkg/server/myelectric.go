package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
)

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.vm.State())
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to decode active request", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Active == nil {
		writeJSONError(w, "active is required", http.StatusBadRequest)
		return
	}

	s.vm.SetActive(*req.Active)
	log.Ctx(r.Context()).DebugContext(r.Context(), "set view active", slog.Bool("active", *req.Active))
	writeJSON(w, s.vm.State())
}

type configResponse struct {
	Fields []types.ConfigField `json:"fields"`
	Data   map[string]any      `json:"data"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, configResponse{
		Fields: s.vm.ConfigFields(),
		Data:   s.vm.ConfigData(),
	})
}

// handleUpdateConfig saves the posted fields. The change shows up in the view
// once the store reports it.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to decode config request", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}

	s.vm.UpdateWithConfigData(r.Context(), data)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.vm.FeedList(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list feeds", slog.Any("error", err))
		writeJSONError(w, "failed to list feeds", http.StatusBadGateway)
		return
	}
	if feeds == nil {
		feeds = []types.Feed{}
	}
	writeJSON(w, feeds)
}
