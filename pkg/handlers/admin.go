package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// ClearCacheResponse reports how many engines a clear closed.
type ClearCacheResponse struct {
	Cleared int `json:"cleared"`
}

// EngineCacheHandler exposes operational controls of the engine cache.
type EngineCacheHandler struct {
	queryService services.QueryService
	engines      *datasource.EngineCache
	logger       *zap.Logger
}

// NewEngineCacheHandler creates a new engine cache handler.
func NewEngineCacheHandler(queryService services.QueryService, engines *datasource.EngineCache, logger *zap.Logger) *EngineCacheHandler {
	return &EngineCacheHandler{queryService: queryService, engines: engines, logger: logger}
}

// RegisterRoutes registers the admin routes on the given mux.
func (h *EngineCacheHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/engine-cache/clear", h.Clear)
	mux.HandleFunc("GET /api/admin/engine-cache/stats", h.Stats)
}

// Clear handles POST /api/admin/engine-cache/clear
func (h *EngineCacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n := h.queryService.ClearEngineCache()
	h.logger.Info("Engine cache cleared", zap.Int("engines", n))
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: ClearCacheResponse{Cleared: n}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stats handles GET /api/admin/engine-cache/stats
func (h *EngineCacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: h.engines.Stats()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
