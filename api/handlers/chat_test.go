package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/piwi3910/neuroroute/api"
	"github.com/piwi3910/neuroroute/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChatHandler_HandleCompletion_Success(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "Hi there!"}
	r := newTestRouter(t, provider)
	handler := NewChatHandler(r, zap.NewNop())

	reqBody := api.ChatRequest{
		Model: "mock-model",
		Messages: []api.Message{
			{Role: "user", Content: "Hello"},
		},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandleCompletion(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.CompletionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Hi there!", resp.Response)
	assert.Equal(t, "mock-model", resp.ModelUsed)
	assert.Equal(t, 10, resp.Tokens.Total)
}

func TestChatHandler_HandleCompletion_EmptyMessages(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "unused"}
	r := newTestRouter(t, provider)
	handler := NewChatHandler(r, zap.NewNop())

	reqBody := api.ChatRequest{Model: "mock-model", Messages: []api.Message{}}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandleCompletion(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.NotEmpty(t, errResp.Error)
}

func TestChatHandler_HandleCompletion_InvalidRole(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "unused"}
	r := newTestRouter(t, provider)
	handler := NewChatHandler(r, zap.NewNop())

	reqBody := api.ChatRequest{
		Model:    "mock-model",
		Messages: []api.Message{{Role: "narrator", Content: "Hello"}},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandleCompletion(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_HandleCompletion_InvalidTemperature(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "unused"}
	r := newTestRouter(t, provider)
	handler := NewChatHandler(r, zap.NewNop())

	temp := float32(3.0)
	reqBody := api.ChatRequest{
		Model:    "mock-model",
		Messages: []api.Message{{Role: "user", Content: "Hello"}},
		Options:  &api.Options{Temperature: &temp},
	}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandleCompletion(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_Validate(t *testing.T) {
	h := &ChatHandler{logger: zap.NewNop()}

	tests := []struct {
		name    string
		req     *api.ChatRequest
		wantErr bool
	}{
		{
			name:    "valid",
			req:     &api.ChatRequest{Messages: []api.Message{{Role: "user", Content: "hi"}}},
			wantErr: false,
		},
		{
			name:    "empty messages",
			req:     &api.ChatRequest{Messages: []api.Message{}},
			wantErr: true,
		},
		{
			name:    "bad role",
			req:     &api.ChatRequest{Messages: []api.Message{{Role: "bogus", Content: "hi"}}},
			wantErr: true,
		},
		{
			name: "tool role is valid",
			req: &api.ChatRequest{Messages: []api.Message{
				{Role: string(llm.RoleTool), Content: "result"},
			}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.validate(tt.req)
			if tt.wantErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}
