package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/neuroroute/llm"
	"github.com/piwi3910/neuroroute/llm/cache"
	"github.com/piwi3910/neuroroute/llm/circuitbreaker"
	"github.com/piwi3910/neuroroute/llm/classifier"
	"github.com/piwi3910/neuroroute/llm/config"
	"github.com/piwi3910/neuroroute/types"
)

// availabilityProbeInterval, registryRefreshInterval and fallbackResetInterval
// are the three independent periodic workers Run starts: a 5-minute
// per-model availability probe, a 15-minute registry reload (preserving
// probed availability/latency across the reload), and an hourly reset of the
// per-ordered-pair fallback counters.
const (
	availabilityProbeInterval = 5 * time.Minute
	registryRefreshInterval   = 15 * time.Minute
	fallbackResetInterval     = time.Hour

	// fallbackWarnThreshold and fallbackDegradeThreshold gate the two alert
	// levels a repeatedly-failing (primary, fallback) pair raises.
	fallbackWarnThreshold    = 3
	fallbackDegradeThreshold = 2

	chainStepTemp    = 0.5
	chainStepMaxTok  = 2048
	chainMaxModels   = 3
)

// Options is the caller-tunable routing behavior for a single Route/RouteChat
// call, mirroring the request-level routing options a caller may set.
type Options struct {
	CostOptimize     bool
	QualityOptimize  bool
	LatencyOptimize  bool
	FallbackEnabled  bool
	ChainEnabled     bool
	CacheStrategy    cache.Strategy
	CacheTTL         time.Duration
	FallbackLevels   int
	DegradedMode     bool
	Timeout          time.Duration
	MonitorFallbacks bool

	// AutoDegradedMode mirrors the process-wide AUTO_DEGRADED_MODE setting:
	// whether consecutive-failure detection is allowed to flip the router
	// into degraded mode on its own, rather than only honoring a caller's
	// explicit DegradedMode request.
	AutoDegradedMode bool
}

// DefaultOptions returns the documented per-field defaults applied whenever a
// caller's Options leaves a field at its zero value in the places that
// matters (see applyDefaults).
func DefaultOptions() Options {
	return Options{
		QualityOptimize:  true,
		FallbackEnabled:  true,
		ChainEnabled:     false,
		CacheStrategy:    cache.StrategyDefault,
		FallbackLevels:   2,
		DegradedMode:     false,
		Timeout:          30 * time.Second,
		MonitorFallbacks: true,
	}
}

// applyDefaults fills the zero-valued fields a caller is expected to omit
// rather than explicitly set to their default. Boolean fields whose default
// is true (QualityOptimize, FallbackEnabled, MonitorFallbacks) can't be
// zero-value-defaulted this way, so Route/RouteChat accept Options by value
// seeded from DefaultOptions() and mutated by the caller, not a partial
// struct merged in here.
func (o Options) applyDefaults() Options {
	if o.FallbackLevels <= 0 {
		o.FallbackLevels = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.CacheStrategy == "" {
		o.CacheStrategy = cache.StrategyDefault
	}
	return o
}

// TokenCounts is the router-facing token accounting shape, named to match
// the external response contract (prompt/completion/total) rather than
// reusing llm.ChatUsage's prompt_tokens/completion_tokens naming, which
// belongs to the adapter wire layer.
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// NormalizedResponse is the router's single output shape for both Route and
// RouteChat.
type NormalizedResponse struct {
	Text              string             `json:"text"`
	Tokens            TokenCounts        `json:"tokens"`
	ModelUsed         string             `json:"modelUsed"`
	ProcessingTimeSec float64            `json:"processingTimeSec"`
	Cost              *float64           `json:"cost,omitempty"`
	Classification    *classifier.Result `json:"classification,omitempty"`
	FunctionCall      *types.FunctionCall `json:"functionCall,omitempty"`
	ToolCalls         []llm.ToolCall     `json:"toolCalls,omitempty"`
	Messages          []llm.Message      `json:"messages,omitempty"`
	Cached            bool               `json:"cached"`
	ModelChain        []string           `json:"modelChain,omitempty"`
}

// fbPairKey identifies an ordered (primary, fallback) pair for counter
// bookkeeping.
type fbPairKey struct {
	Primary  string
	Fallback string
}

type fbCounter struct {
	failures            int
	consecutiveFailures int
}

// Router implements the routing contract: classify, select a model (or a
// direct id, or a chain), invoke it with circuit-breaker gating, fall back
// across ordered candidates on failure, and cache the normalized result.
//
// Selection is a deterministic multi-axis sort, unlike WeightedRouter's
// randomized weighted-score pick — the two coexist in this package because
// callers choosing semantic/weighted routing still need ModelRouter's
// probabilistic behavior elsewhere; Router is the deterministic contract a
// cost/latency/quality-tunable HTTP gateway needs.
type Router struct {
	registry  *config.Registry
	cache     *cache.PromptCache
	breaker   *circuitbreaker.Breaker
	providers map[string]llm.Provider
	logger    *zap.Logger

	fbMu       sync.Mutex
	fbCounters map[fbPairKey]*fbCounter

	degraded atomicBool
}

// New constructs a Router over the given registry, cache, breaker and the
// set of constructed provider adapters keyed by provider name (matching
// ModelInfo.Provider / Provider.Name()).
func New(registry *config.Registry, promptCache *cache.PromptCache, breaker *circuitbreaker.Breaker, providers map[string]llm.Provider, logger *zap.Logger) *Router {
	return &Router{
		registry:   registry,
		cache:      promptCache,
		breaker:    breaker,
		providers:  providers,
		logger:     logger.With(zap.String("component", "router")),
		fbCounters: make(map[fbPairKey]*fbCounter),
	}
}

// Run starts the three periodic background workers and blocks until ctx is
// canceled or one of them returns an unrecoverable error. Each worker logs
// and continues past a single failed iteration; only a panic recovery
// failure would propagate an error here, which in practice never happens, so
// Run's error return exists for the errgroup contract rather than an
// expected failure path.
func (r *Router) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.tick(ctx, availabilityProbeInterval, r.probeAvailability)
		return nil
	})
	g.Go(func() error {
		r.tick(ctx, registryRefreshInterval, r.refreshRegistry)
		return nil
	})
	g.Go(func() error {
		r.tick(ctx, fallbackResetInterval, r.resetFallbackCounters)
		return nil
	})

	return g.Wait()
}

func (r *Router) tick(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (r *Router) probeAvailability(ctx context.Context) {
	models, err := r.registry.GetAllModelConfigs(ctx)
	if err != nil {
		r.logger.Warn("availability probe: list models failed", zap.Error(err))
		return
	}
	for _, m := range models {
		p, ok := r.providers[m.Provider]
		if !ok {
			r.registry.SetAvailability(m.ID, false)
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status, err := p.HealthCheck(probeCtx)
		cancel()
		r.registry.SetAvailability(m.ID, err == nil && status != nil && status.Healthy)
	}
}

func (r *Router) refreshRegistry(ctx context.Context) {
	if err := r.registry.RefreshModels(ctx); err != nil {
		r.logger.Warn("registry refresh failed", zap.Error(err))
	}
}

func (r *Router) resetFallbackCounters(context.Context) {
	r.fbMu.Lock()
	defer r.fbMu.Unlock()
	r.fbCounters = make(map[fbPairKey]*fbCounter)
}

// Route sends a single prompt string through the pipeline.
func (r *Router) Route(ctx context.Context, prompt, modelID string, maxTokens int, temperature float32, opts Options) (*NormalizedResponse, error) {
	messages := []llm.Message{types.NewUserMessage(prompt)}
	return r.route(ctx, messages, modelID, maxTokens, temperature, nil, "", opts)
}

// RouteChat sends a full conversation through the pipeline.
func (r *Router) RouteChat(ctx context.Context, messages []llm.Message, modelID string, maxTokens int, temperature float32, tools []llm.ToolSchema, toolChoice string, opts Options) (*NormalizedResponse, error) {
	return r.route(ctx, messages, modelID, maxTokens, temperature, tools, toolChoice, opts)
}

// route implements the pipeline: cache consult, classify, direct-model or
// chain or selectModel, invoke with fallback, attach metadata, cache write.
func (r *Router) route(ctx context.Context, messages []llm.Message, modelID string, maxTokens int, temperature float32, tools []llm.ToolSchema, toolChoice string, opts Options) (*NormalizedResponse, error) {
	start := time.Now()
	opts = opts.applyDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	baseReq := &llm.ChatRequest{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Tools:       tools,
		ToolChoice:  toolChoice,
	}

	prompt := lastUserText(messages)
	cacheKey := cache.GenerateKey(baseReq)

	if entry, err := r.cache.Get(ctx, cacheKey, len(prompt)); err == nil {
		var cached NormalizedResponse
		if jsonErr := json.Unmarshal(entry.Response, &cached); jsonErr == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	classification := classifier.Classify(prompt)

	models, err := r.registry.GetAllModelConfigs(ctx)
	if err != nil {
		return nil, (&llm.Error{Code: llm.ErrInternalError, Message: "routing: load model registry failed"}).WithCause(err)
	}
	if len(models) == 0 {
		return nil, (&llm.Error{Code: llm.ErrRouterNoModels, Message: "no models configured"}).WithHTTPStatus(503)
	}

	var resp *NormalizedResponse
	var usedChain []string

	switch {
	case modelID != "":
		primary := findModel(models, modelID)
		if primary == nil {
			return nil, (&llm.Error{Code: llm.ErrModelNotFound, Message: fmt.Sprintf("model %q not found", modelID)}).WithHTTPStatus(404)
		}
		resp, err = r.invokeWithFallback(ctx, primary, models, baseReq, classification, opts)
	case opts.ChainEnabled && shouldChain(classification):
		resp, usedChain, err = r.executeChain(ctx, models, baseReq, classification, opts)
	default:
		candidate := selectModel(models, classification, opts)
		if candidate == nil {
			return nil, (&llm.Error{Code: llm.ErrRouterNoModels, Message: "no model satisfies routing constraints"}).WithHTTPStatus(503)
		}
		resp, err = r.invokeWithFallback(ctx, candidate, models, baseReq, classification, opts)
	}

	if err != nil {
		if opts.DegradedMode || (opts.AutoDegradedMode && r.degraded.Load()) {
			return r.degradedResponse(classification, err), nil
		}
		return nil, err
	}

	resp.Classification = classification
	resp.ProcessingTimeSec = time.Since(start).Seconds()
	if len(usedChain) > 0 {
		resp.ModelChain = usedChain
	}

	if payload, err := json.Marshal(resp); err == nil {
		class := &cache.Classification{Type: string(classification.Type), Complexity: string(classification.Complexity)}
		_ = r.cache.Set(ctx, cacheKey, payload, class)
	}

	return resp, nil
}

func lastUserText(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

func findModel(models []*config.ModelInfo, id string) *config.ModelInfo {
	for _, m := range models {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// selectModel filters to available models covering (or, failing that,
// best-covering) the classification's required features, then sorts by the
// single active optimization axis. Precedence among simultaneously-set axes
// is cost > latency > quality, since qualityOptimize defaults true and an
// explicit cost/latency preference should override a caller-unset default
// rather than be silently ignored.
func selectModel(models []*config.ModelInfo, classification *classifier.Result, opts Options) *config.ModelInfo {
	available := filterAvailable(models)
	if len(available) == 0 {
		return nil
	}

	candidates := filterByCapabilities(available, classification.Features, true)
	if len(candidates) == 0 {
		candidates = filterByCapabilities(available, classification.Features, false)
	}
	if len(candidates) == 0 {
		candidates = available
	}

	sortByAxis(candidates, opts)
	return candidates[0]
}

func filterAvailable(models []*config.ModelInfo) []*config.ModelInfo {
	out := make([]*config.ModelInfo, 0, len(models))
	for _, m := range models {
		if m.Available {
			out = append(out, m)
		}
	}
	return out
}

// filterByCapabilities returns the models covering every feature in
// features (requireAll) or, when requireAll is false, the subset achieving
// the maximum coverage count among the candidates given.
func filterByCapabilities(models []*config.ModelInfo, features []string, requireAll bool) []*config.ModelInfo {
	if len(features) == 0 {
		return models
	}

	coverage := make([]int, len(models))
	best := 0
	for i, m := range models {
		caps := toSet(m.Capabilities)
		n := 0
		for _, f := range features {
			if caps[f] {
				n++
			}
		}
		coverage[i] = n
		if n > best {
			best = n
		}
	}

	out := make([]*config.ModelInfo, 0, len(models))
	for i, m := range models {
		if requireAll && coverage[i] == len(features) {
			out = append(out, m)
		} else if !requireAll && coverage[i] == best && best > 0 {
			out = append(out, m)
		}
	}
	return out
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, v := range in {
		out[v] = true
	}
	return out
}

func sortByAxis(models []*config.ModelInfo, opts Options) {
	switch {
	case opts.CostOptimize:
		sort.SliceStable(models, func(i, j int) bool {
			a, b := models[i], models[j]
			if a.Cost != b.Cost {
				return a.Cost < b.Cost
			}
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			if a.Quality != b.Quality {
				return a.Quality > b.Quality
			}
			return a.ID < b.ID
		})
	case opts.LatencyOptimize:
		sort.SliceStable(models, func(i, j int) bool {
			a, b := models[i], models[j]
			if a.Latency != b.Latency {
				return a.Latency < b.Latency
			}
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			if a.Quality != b.Quality {
				return a.Quality > b.Quality
			}
			return a.ID < b.ID
		})
	default: // quality, the default axis
		sort.SliceStable(models, func(i, j int) bool {
			a, b := models[i], models[j]
			if a.Quality != b.Quality {
				return a.Quality > b.Quality
			}
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			if a.Cost != b.Cost {
				return a.Cost < b.Cost
			}
			return a.ID < b.ID
		})
	}
}

// shouldChain reports whether classification warrants multi-model chaining:
// complex-or-worse analytical prompts, or prompts requiring three or more
// features.
func shouldChain(classification *classifier.Result) bool {
	if classification.Type == classifier.TypeAnalytical &&
		(classification.Complexity == classifier.ComplexityComplex || classification.Complexity == classifier.ComplexityVeryComplex) {
		return true
	}
	return len(classification.Features) >= 3
}

// buildFallbackOrder produces the ordered, deduplicated fallback candidates
// for primary, per the four-tier policy: same-provider, then
// capability-superset, then feature-covering, then the remainder by
// descending quality. Up to opts.FallbackLevels candidates are returned.
func buildFallbackOrder(primary *config.ModelInfo, models []*config.ModelInfo, classification *classifier.Result, opts Options) []*config.ModelInfo {
	available := filterAvailable(models)
	seen := map[string]bool{primary.ID: true}
	var ordered []*config.ModelInfo

	add := func(batch []*config.ModelInfo) {
		for _, m := range batch {
			if !seen[m.ID] {
				seen[m.ID] = true
				ordered = append(ordered, m)
			}
		}
	}

	sameProvider := make([]*config.ModelInfo, 0)
	for _, m := range available {
		if m.Provider == primary.Provider && m.ID != primary.ID {
			sameProvider = append(sameProvider, m)
		}
	}
	sortByAxis(sameProvider, opts)
	add(sameProvider)

	primaryCaps := toSet(primary.Capabilities)
	superset := make([]*config.ModelInfo, 0)
	for _, m := range available {
		if m.ID == primary.ID {
			continue
		}
		caps := toSet(m.Capabilities)
		isSuperset := true
		for c := range primaryCaps {
			if !caps[c] {
				isSuperset = false
				break
			}
		}
		if isSuperset {
			superset = append(superset, m)
		}
	}
	sortByAxis(superset, opts)
	add(superset)

	covering := filterByCapabilities(available, classification.Features, true)
	sortByAxis(covering, opts)
	add(covering)

	rest := make([]*config.ModelInfo, len(available))
	copy(rest, available)
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].Quality != rest[j].Quality {
			return rest[i].Quality > rest[j].Quality
		}
		return rest[i].ID < rest[j].ID
	})
	add(rest)

	if len(ordered) > opts.FallbackLevels {
		ordered = ordered[:opts.FallbackLevels]
	}
	return ordered
}

// invokeWithFallback calls primary; on failure, and if fallbackEnabled,
// walks the fallback order until one succeeds or the order is exhausted.
func (r *Router) invokeWithFallback(ctx context.Context, primary *config.ModelInfo, models []*config.ModelInfo, baseReq *llm.ChatRequest, classification *classifier.Result, opts Options) (*NormalizedResponse, error) {
	req := *baseReq
	req.Model = primary.ID
	resp, err := r.invoke(ctx, primary, &req)
	if err == nil {
		return resp, nil
	}
	if !opts.FallbackEnabled {
		return nil, err
	}

	lastErr := err
	for _, fb := range buildFallbackOrder(primary, models, classification, opts) {
		if opts.MonitorFallbacks {
			r.recordFallbackAttempt(primary.ID, fb.ID, false)
		}

		fbReq := *baseReq
		fbReq.Model = fb.ID
		resp, err := r.invoke(ctx, fb, &fbReq)
		if err == nil {
			if opts.MonitorFallbacks {
				r.recordFallbackAttempt(primary.ID, fb.ID, true)
			}
			return resp, nil
		}
		lastErr = err
	}

	return nil, (&llm.Error{Code: llm.ErrRouterAllFailed, Message: "all candidate models failed"}).
		WithHTTPStatus(503).WithCause(lastErr)
}

// recordFallbackAttempt updates the (primary, fallback) pair's hourly
// counters. success resets the consecutive-failure streak; a failure bumps
// both counters and, past threshold, logs a warning or an error — the error
// case additionally flips the router into degraded mode when
// opts.AutoDegradedMode allows it (checked by the caller via r.degraded).
func (r *Router) recordFallbackAttempt(primary, fallback string, success bool) {
	key := fbPairKey{Primary: primary, Fallback: fallback}

	r.fbMu.Lock()
	c, ok := r.fbCounters[key]
	if !ok {
		c = &fbCounter{}
		r.fbCounters[key] = c
	}
	if success {
		c.consecutiveFailures = 0
		r.fbMu.Unlock()
		return
	}
	c.failures++
	c.consecutiveFailures++
	failures, consecutive := c.failures, c.consecutiveFailures
	r.fbMu.Unlock()

	if failures >= fallbackWarnThreshold {
		r.logger.Warn("fallback pair failing frequently",
			zap.String("primary", primary), zap.String("fallback", fallback), zap.Int("failures_this_hour", failures))
	}
	if consecutive >= fallbackDegradeThreshold {
		r.logger.Error("fallback pair failed consecutively, considering degraded mode",
			zap.String("primary", primary), zap.String("fallback", fallback), zap.Int("consecutive_failures", consecutive))
		r.degraded.Store(true)
	}
}

// invoke gates a single adapter call behind the circuit breaker and feeds
// its outcome back into the registry's availability/latency tracking and
// the breaker's trip/reset state.
func (r *Router) invoke(ctx context.Context, model *config.ModelInfo, req *llm.ChatRequest) (*NormalizedResponse, error) {
	provider, ok := r.providers[model.Provider]
	if !ok {
		return nil, (&llm.Error{Code: llm.ErrModelUnavailable, Message: fmt.Sprintf("no adapter registered for provider %q", model.Provider)}).WithProvider(model.Provider)
	}

	status, err := r.breaker.Allow(ctx, model.Provider, model.ID, "unary")
	if err != nil {
		return nil, (&llm.Error{Code: llm.ErrModelUnavailable, Message: "circuit breaker open"}).
			WithProvider(model.Provider).WithRetryable(true).WithCause(err)
	}

	start := time.Now()
	chatResp, callErr := provider.Completion(ctx, req)
	latency := time.Since(start)

	if callErr != nil {
		r.registry.SetAvailability(model.ID, false)
		mapped := mapToModelError(callErr, model.Provider)
		if isBreakerTrippable(mapped) {
			if tripErr := r.breaker.Trip(ctx, model.Provider, model.ID, "unary"); tripErr != nil {
				r.logger.Warn("circuit breaker trip failed", zap.Error(tripErr))
			}
		}
		return nil, mapped
	}

	r.registry.RecordLatency(model.ID, float64(latency.Milliseconds()))
	r.registry.SetAvailability(model.ID, true)
	if status == circuitbreaker.StatusHalfOpen {
		if resetErr := r.breaker.Reset(ctx, model.Provider, model.ID, "unary"); resetErr != nil {
			r.logger.Warn("circuit breaker reset failed", zap.Error(resetErr))
		}
	}

	return chatResponseToNormalized(chatResp, model.ID, req.Messages), nil
}

// mapToModelError re-classifies an adapter-level error into the router's
// MODEL_* family, wrapping the original message and carrying the provider
// tag along for the error envelope. Adapter errors already distinguish
// retryable failures (timeouts, rate limits, transient 5xx) from terminal
// ones (auth, quota, content policy) — this step only renames the code
// family, it does not change the retryable verdict.
func mapToModelError(err error, provider string) *llm.Error {
	e, ok := err.(*llm.Error)
	if !ok {
		return (&llm.Error{Code: types.ErrNetworkError, Message: err.Error()}).WithProvider(provider).WithRetryable(true).WithCause(err)
	}

	code := types.ErrModelUnavailable
	switch e.Code {
	case llm.ErrAuthentication, llm.ErrUnauthorized, llm.ErrForbidden:
		code = types.ErrModelAuthentication
	case llm.ErrRateLimit, llm.ErrRateLimited:
		code = types.ErrModelRateLimited
	case llm.ErrQuotaExceeded:
		code = types.ErrModelQuotaExceeded
	case llm.ErrContentFiltered:
		code = types.ErrModelContentFilter
	case llm.ErrInvalidRequest:
		code = types.ErrModelInvalidRequest
	case llm.ErrContextTooLong:
		code = types.ErrModelContextLength
	case llm.ErrUpstreamTimeout, llm.ErrTimeout:
		code = types.ErrModelTimeout
	case llm.ErrModelOverloaded, llm.ErrServiceUnavailable, llm.ErrProviderUnavailable, llm.ErrUpstreamError:
		code = types.ErrModelUnavailable
	}

	return &llm.Error{
		Code:       code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Retryable:  e.Retryable,
		Provider:   provider,
		Severity:   e.Severity,
		Details:    e.Details,
		Cause:      e,
	}
}

// isBreakerTrippable reports whether err's code is one of the three
// non-retryable classifications the breaker should open on, per
// circuitbreaker.Breaker.Trip's documented contract.
func isBreakerTrippable(err *llm.Error) bool {
	switch err.Code {
	case types.ErrModelAuthentication, types.ErrModelQuotaExceeded, types.ErrModelContentFilter:
		return true
	default:
		return false
	}
}

func chatResponseToNormalized(resp *llm.ChatResponse, modelID string, history []llm.Message) *NormalizedResponse {
	var text string
	var toolCalls []llm.ToolCall
	var functionCall *types.FunctionCall
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0].Message
		text = choice.Content
		toolCalls = choice.ToolCalls
		functionCall = choice.FunctionCall
	}

	messages := append(append([]llm.Message{}, history...), types.NewAssistantMessage(text).WithToolCalls(toolCalls))

	return &NormalizedResponse{
		Text: text,
		Tokens: TokenCounts{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		ModelUsed:    modelID,
		FunctionCall: functionCall,
		ToolCalls:    toolCalls,
		Messages:     messages,
	}
}

// executeChain runs a short sequence of models for a prompt classified as
// warranting multi-step reasoning: every step but the last runs at a fixed
// low temperature and a capped token budget so intermediate steps stay
// cheap; the final step uses the caller's own parameters. An empty or
// all-failed chain falls back to ordinary single-model selection.
func (r *Router) executeChain(ctx context.Context, models []*config.ModelInfo, baseReq *llm.ChatRequest, classification *classifier.Result, opts Options) (*NormalizedResponse, []string, error) {
	candidates := filterByCapabilities(filterAvailable(models), classification.Features, true)
	if len(candidates) == 0 {
		candidates = filterByCapabilities(filterAvailable(models), classification.Features, false)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Quality != candidates[j].Quality {
			return candidates[i].Quality > candidates[j].Quality
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > chainMaxModels {
		candidates = candidates[:chainMaxModels]
	}

	if len(candidates) == 0 {
		candidate := selectModel(models, classification, opts)
		if candidate == nil {
			return nil, nil, (&llm.Error{Code: llm.ErrRouterNoModels, Message: "no model satisfies routing constraints"}).WithHTTPStatus(503)
		}
		resp, err := r.invokeWithFallback(ctx, candidate, models, baseReq, classification, opts)
		return resp, nil, err
	}

	var (
		lastResp     *NormalizedResponse
		usedChain    []string
		totalPrompt  int
		totalCompl   int
		chainContext string
	)

	for i, m := range candidates {
		req := *baseReq
		req.Model = m.ID
		if chainContext != "" {
			req.Messages = append(append([]llm.Message{}, baseReq.Messages...), types.NewUserMessage("Prior step output:\n"+chainContext))
		}

		isLast := i == len(candidates)-1
		if isLast {
			req.MaxTokens = baseReq.MaxTokens
			req.Temperature = baseReq.Temperature
		} else {
			req.Temperature = chainStepTemp
			maxTok := baseReq.MaxTokens
			if maxTok == 0 || maxTok > chainStepMaxTok {
				maxTok = chainStepMaxTok
			}
			req.MaxTokens = maxTok
		}

		resp, err := r.invokeWithFallback(ctx, m, models, &req, classification, opts)
		if err != nil {
			r.logger.Warn("chain step failed, skipping model", zap.String("model", m.ID), zap.Error(err))
			continue
		}

		usedChain = append(usedChain, m.ID)
		totalPrompt += resp.Tokens.Prompt
		totalCompl += resp.Tokens.Completion
		chainContext = resp.Text
		lastResp = resp
	}

	if lastResp == nil {
		candidate := selectModel(models, classification, opts)
		if candidate == nil {
			return nil, nil, (&llm.Error{Code: llm.ErrRouterNoModels, Message: "no model satisfies routing constraints"}).WithHTTPStatus(503)
		}
		resp, err := r.invokeWithFallback(ctx, candidate, models, baseReq, classification, opts)
		return resp, nil, err
	}

	lastResp.Tokens = TokenCounts{Prompt: totalPrompt, Completion: totalCompl, Total: totalPrompt + totalCompl}
	return lastResp, usedChain, nil
}

// degradedResponse builds the deterministic placeholder returned when every
// candidate failed and degraded mode is in effect: no model was actually
// called, so cost is zero and the token counts are the classifier's
// estimate rather than a real usage report.
func (r *Router) degradedResponse(classification *classifier.Result, cause error) *NormalizedResponse {
	msg := "the service is currently degraded"
	if cause != nil {
		msg = fmt.Sprintf("the service is currently degraded: %s", cause.Error())
	}
	zero := 0.0
	return &NormalizedResponse{
		Text:      msg,
		ModelUsed: "degraded_mode",
		Tokens: TokenCounts{
			Prompt: classification.Tokens.Estimated,
			Total:  classification.Tokens.Estimated,
		},
		Cost:           &zero,
		Classification: classification,
		Cached:         false,
	}
}

// atomicBool is a tiny CAS-free boolean guarded by its own mutex, avoiding a
// sync/atomic.Bool dependency footprint for a single infrequently-read flag.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) Load() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func (a *atomicBool) Store(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}
