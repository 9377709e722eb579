package handlers

import (
	"net/http"

	"github.com/piwi3910/neuroroute/api"
	"github.com/piwi3910/neuroroute/llm/config"
	"github.com/piwi3910/neuroroute/types"
	"go.uber.org/zap"
)

// ModelsHandler serves GET /models: the model catalog as registered in the
// shared config.Registry.
type ModelsHandler struct {
	registry *config.Registry
	logger   *zap.Logger
}

// NewModelsHandler creates a models handler over the shared registry.
func NewModelsHandler(registry *config.Registry, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{registry: registry, logger: logger}
}

// HandleList handles GET /models.
// @Summary List available models
// @Tags models
// @Produce json
// @Success 200 {object} api.ModelListResponse
// @Router /models [get]
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.registry.GetAllModelConfigs(r.Context())
	if err != nil {
		h.logger.Error("failed to load model catalog", zap.Error(err))
		WriteAPIError(w, r, types.NewError(types.ErrInternalError, "failed to load model catalog").WithCause(err), h.logger)
		return
	}

	models := make([]api.ModelInfo, len(infos))
	for i, info := range infos {
		models[i] = api.ModelInfo{
			ID:           info.ID,
			Provider:     info.Provider,
			Capabilities: info.Capabilities,
			Cost:         info.Cost,
			Quality:      info.Quality,
			MaxTokens:    info.MaxTokens,
			Available:    info.Available,
		}
	}

	WriteJSON(w, http.StatusOK, api.ModelListResponse{Models: models})
}
