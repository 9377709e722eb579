package handlers

import (
	"net/http"
	"time"

	"github.com/piwi3910/neuroroute/api"
	"github.com/piwi3910/neuroroute/llm/cache"
	"github.com/piwi3910/neuroroute/llm/router"
	"github.com/piwi3910/neuroroute/types"
	"go.uber.org/zap"
)

// handleRouterError normalizes a Router.Route/RouteChat error into the
// flat API error body. Non-*types.Error failures (e.g. context deadline)
// are wrapped as a non-retryable internal error.
func handleRouterError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteAPIError(w, r, typedErr, logger)
		return
	}
	WriteAPIError(w, r, types.NewError(types.ErrInternalError, "router error").WithCause(err), logger)
}

// buildOptions translates the wire-level api.Options into router.Options,
// seeding from router.DefaultOptions() so fields the caller omits keep
// their documented defaults instead of zeroing out booleans that default
// true.
func buildOptions(o *api.Options) router.Options {
	opts := router.DefaultOptions()
	if o == nil {
		return opts
	}
	if o.CostOptimize != nil {
		opts.CostOptimize = *o.CostOptimize
	}
	if o.QualityOptimize != nil {
		opts.QualityOptimize = *o.QualityOptimize
	}
	if o.LatencyOptimize != nil {
		opts.LatencyOptimize = *o.LatencyOptimize
	}
	if o.FallbackEnabled != nil {
		opts.FallbackEnabled = *o.FallbackEnabled
	}
	if o.ChainEnabled != nil {
		opts.ChainEnabled = *o.ChainEnabled
	}
	if o.CacheStrategy != "" {
		opts.CacheStrategy = cache.Strategy(o.CacheStrategy)
	}
	if o.CacheTTL > 0 {
		opts.CacheTTL = time.Duration(o.CacheTTL) * time.Second
	}
	return opts
}

func optsMaxTokens(o *api.Options) int {
	if o == nil {
		return 0
	}
	return o.MaxTokens
}

func optsTemperature(o *api.Options) float32 {
	if o == nil || o.Temperature == nil {
		return 0
	}
	return *o.Temperature
}

// normalizedToResponse translates the router's NormalizedResponse into the
// wire-level CompletionResponse shared by POST /prompt and POST /chat.
func normalizedToResponse(n *router.NormalizedResponse) *api.CompletionResponse {
	resp := &api.CompletionResponse{
		Response:       n.Text,
		ModelUsed:      n.ModelUsed,
		Tokens:         api.TokenUsage{Prompt: n.Tokens.Prompt, Completion: n.Tokens.Completion, Total: n.Tokens.Total},
		Cached:         n.Cached,
		ProcessingTime: n.ProcessingTimeSec,
		Cost:           n.Cost,
		ModelChain:     n.ModelChain,
	}
	if n.Classification != nil {
		resp.Classification = &api.Classification{
			Intent:     string(n.Classification.Type),
			Confidence: n.Classification.Confidence,
			Features:   n.Classification.Features,
			Domain:     n.Classification.Domain,
		}
	}
	if len(n.Messages) > 0 {
		msgs := make([]api.Message, len(n.Messages))
		for i, m := range n.Messages {
			msgs[i] = api.Message{Role: string(m.Role), Content: m.Content}
		}
		resp.Messages = msgs
	}
	return resp
}
