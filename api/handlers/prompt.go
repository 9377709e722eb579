package handlers

import (
	"net/http"

	"github.com/piwi3910/neuroroute/api"
	"github.com/piwi3910/neuroroute/llm/router"
	"github.com/piwi3910/neuroroute/types"
	"go.uber.org/zap"
)

// PromptHandler serves POST /prompt by routing a single prompt through the
// router pipeline (cache -> classify -> select -> invoke -> fallback/chain).
type PromptHandler struct {
	router *router.Router
	logger *zap.Logger
}

// NewPromptHandler creates a prompt handler over the shared router.
func NewPromptHandler(r *router.Router, logger *zap.Logger) *PromptHandler {
	return &PromptHandler{router: r, logger: logger}
}

// HandlePrompt handles POST /prompt.
// @Summary Complete a single prompt
// @Tags completion
// @Accept json
// @Produce json
// @Param request body api.PromptRequest true "prompt request"
// @Success 200 {object} api.CompletionResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /prompt [post]
func (h *PromptHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.PromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.validate(&req); err != nil {
		WriteAPIError(w, r, err, h.logger)
		return
	}

	opts := buildOptions(req.Options)
	result, err := h.router.Route(r.Context(), req.Prompt, req.Model, optsMaxTokens(req.Options), optsTemperature(req.Options), opts)
	if err != nil {
		handleRouterError(w, r, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, normalizedToResponse(result))
}

func (h *PromptHandler) validate(req *api.PromptRequest) *types.Error {
	if len(req.Prompt) == 0 || len(req.Prompt) > 10000 {
		return types.NewError(types.ErrInvalidRequest, "prompt must be between 1 and 10000 characters")
	}
	return validateOptions(req.Options)
}

// validateOptions checks the shared Options bounds from the spec's request
// contract (temperature/topP/penalty ranges, positive cacheTTL).
func validateOptions(o *api.Options) *types.Error {
	if o == nil {
		return nil
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return types.NewError(types.ErrInvalidRequest, "temperature must be between 0 and 2")
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return types.NewError(types.ErrInvalidRequest, "topP must be between 0 and 1")
	}
	if o.FrequencyPenalty != nil && (*o.FrequencyPenalty < -2 || *o.FrequencyPenalty > 2) {
		return types.NewError(types.ErrInvalidRequest, "frequencyPenalty must be between -2 and 2")
	}
	if o.PresencePenalty != nil && (*o.PresencePenalty < -2 || *o.PresencePenalty > 2) {
		return types.NewError(types.ErrInvalidRequest, "presencePenalty must be between -2 and 2")
	}
	if o.CacheTTL < 0 {
		return types.NewError(types.ErrInvalidRequest, "cacheTTL must be > 0")
	}
	switch o.CacheStrategy {
	case "", "default", "aggressive", "minimal", "none":
	default:
		return types.NewError(types.ErrInvalidRequest, "cacheStrategy must be one of default, aggressive, minimal, none")
	}
	return nil
}
