package handlers

import (
	"net/http"

	"github.com/piwi3910/neuroroute/api"
	"github.com/piwi3910/neuroroute/llm"
	"github.com/piwi3910/neuroroute/llm/router"
	"github.com/piwi3910/neuroroute/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// ChatHandler serves POST /chat by routing a multi-turn conversation
// through the router pipeline.
type ChatHandler struct {
	router *router.Router
	logger *zap.Logger
}

// NewChatHandler creates a chat handler over the shared router.
func NewChatHandler(r *router.Router, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{router: r, logger: logger}
}

// HandleCompletion handles POST /chat.
// @Summary Complete a chat conversation
// @Tags completion
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "chat request"
// @Success 200 {object} api.CompletionResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /chat [post]
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.validate(&req); err != nil {
		WriteAPIError(w, r, err, h.logger)
		return
	}

	messages := make([]types.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = types.Message{Role: types.Role(m.Role), Content: m.Content}
	}
	tools := make([]types.ToolSchema, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = types.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}

	opts := buildOptions(req.Options)
	result, err := h.router.RouteChat(r.Context(), messages, req.Model, optsMaxTokens(req.Options), optsTemperature(req.Options), tools, req.ToolChoice, opts)
	if err != nil {
		handleRouterError(w, r, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, normalizedToResponse(result))
}

func (h *ChatHandler) validate(req *api.ChatRequest) *types.Error {
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "messages cannot be empty")
	}
	for _, m := range req.Messages {
		switch llm.Role(m.Role) {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool:
		default:
			return types.NewError(types.ErrInvalidRequest, "invalid message role: "+m.Role)
		}
	}
	return validateOptions(req.Options)
}
