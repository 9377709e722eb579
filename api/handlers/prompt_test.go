package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/piwi3910/neuroroute/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPromptHandler_HandlePrompt_Success(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "42"}
	r := newTestRouter(t, provider)
	handler := NewPromptHandler(r, zap.NewNop())

	reqBody := api.PromptRequest{Prompt: "what is the answer", Model: "mock-model"}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandlePrompt(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.CompletionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "42", resp.Response)
	assert.Equal(t, "mock-model", resp.ModelUsed)
}

func TestPromptHandler_HandlePrompt_EmptyPrompt(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "unused"}
	r := newTestRouter(t, provider)
	handler := NewPromptHandler(r, zap.NewNop())

	reqBody := api.PromptRequest{Prompt: "", Model: "mock-model"}
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.HandlePrompt(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromptHandler_HandlePrompt_WrongContentType(t *testing.T) {
	provider := &fakeProvider{name: "mock", replyText: "unused"}
	r := newTestRouter(t, provider)
	handler := NewPromptHandler(r, zap.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "text/plain")

	handler.HandlePrompt(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateOptions(t *testing.T) {
	badTemp := float32(5)
	err := validateOptions(&api.Options{Temperature: &badTemp})
	assert.NotNil(t, err)

	goodTemp := float32(0.7)
	err = validateOptions(&api.Options{Temperature: &goodTemp})
	assert.Nil(t, err)

	err = validateOptions(&api.Options{CacheStrategy: "bogus"})
	assert.NotNil(t, err)

	assert.Nil(t, validateOptions(nil))
}
