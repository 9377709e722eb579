/*
Package llm provides the provider abstraction, classification and caching
building blocks that llm/router assembles into the request pipeline:
classify a prompt, pick a model from the shared catalog, invoke a provider
with retry and circuit breaking, normalize the result.

# Provider Interface

Every backend implements the same contract:

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	    ListModels(ctx context.Context) ([]Model, error)
	}

# Providers

llm/providers ships adapters for OpenAI, Anthropic and Gemini, plus a
generic OpenAI-compatible adapter (llm/providers/openaicompat) used for
self-hosted and third-party endpoints that speak the OpenAI wire format
(e.g. LM Studio).

# Routing

llm/router.Router ties a provider set to a llm/config.Registry (the model
catalog and per-provider API keys), a llm/cache.PromptCache and a
llm/circuitbreaker.Breaker. Route and RouteChat classify the request with
llm/classifier, select a model, invoke it with fallback/chain support, and
return a NormalizedResponse with consistent token accounting regardless of
which provider served the request.

	resp, err := r.Route(ctx, "Summarize this report", "", 0, 0, router.DefaultOptions())

# Caching

llm/cache.PromptCache stores normalized responses keyed by a hash of the
prompt/model/options, with per-request strategies (default, aggressive,
minimal, none) controlling TTL and whether a cache hit is attempted at all.

# Classification

llm/classifier.Classify is a pure, deterministic function mapping a prompt
to an intent type, complexity tier and priority, used by the router to
pick a model tier and to populate the classification block a caller sees
in the response.

# Resilience

llm/circuitbreaker.Breaker keeps a closed/open/half-open state per
(provider, model, mode) in the shared KV store: Trip opens it, it reads as
half-open 30s later, and Reset closes it. It keeps no failure counts and
has no failure threshold. llm/retry provides the backoff used around
individual provider calls.
*/
package llm
