package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ruleforge/ruleforge/pkg/toolbox"
)

// DiscoveryRoutes defines the routes for the tool discovery API.
type DiscoveryRoutes struct {
	logger *zap.SugaredLogger
	bridge *toolbox.Bridge
}

// DiscoveryRouter creates a new router for the tool discovery API.
func DiscoveryRouter(logger *zap.SugaredLogger, bridge *toolbox.Bridge) http.Handler {
	routes := DiscoveryRoutes{logger: logger, bridge: bridge}

	r := chi.NewRouter()
	r.Get("/tools", routes.discoverTools)
	return r
}

// discoverTools
//
//	@Summary		List callback tools
//	@Description	List the host-side tools engines may invoke via callback
//	@Tags			discovery
//	@Produce		json
//	@Success		200	{object}	toolListResponse
//	@Router			/api/v1/discovery/tools [get]
func (d *DiscoveryRoutes) discoverTools(w http.ResponseWriter, _ *http.Request) {
	tools := d.bridge.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{Name: t.Name(), Description: t.Description()})
	}
	d.logger.Debugw("discovery listed tools", "count", len(out))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toolListResponse{Tools: out}); err != nil {
		http.Error(w, "Failed to encode tool list", http.StatusInternalServerError)
		return
	}
}

// toolInfo is one registered tool's discoverable metadata.
type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// toolListResponse represents the response for the tool discovery
type toolListResponse struct {
	Tools []toolInfo `json:"tools"`
}
