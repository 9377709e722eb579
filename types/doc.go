// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared vocabulary for the router: the message
model exchanged with providers, the tool-calling types, and the structured
error taxonomy. It sits below llm, api and internal — nothing in here
imports any other package of this module, so it is safe for all of them to
depend on it without risk of an import cycle.

# Core types

  - Message           — a chat turn (Role, Content, ToolCalls, Images, FunctionCall)
  - ToolSchema         — a tool definition (name + description + JSON Schema parameters)
  - ToolResult         — the result of executing a tool call
  - TokenUsage         — prompt/completion/total token and cost accounting
  - Tokenizer / EstimateTokenizer — token counting interface and its character-based fallback
  - Error / ErrorCode  — the structured error taxonomy, with HTTP status, retryability,
    severity, provider and correlation-id metadata

context.go carries the request-scoped values the HTTP middleware chain
attaches and handlers read back: request id, correlation id, and (once a
JWT is verified) tenant id, user id and roles.
*/
package types
