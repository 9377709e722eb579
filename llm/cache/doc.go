// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package cache implements the router's response cache (C1): a KV-backed,
fingerprint-keyed store for normalized LLM responses with a
classification-driven TTL policy.

# Overview

GenerateKey computes a deterministic SHA-256 fingerprint over the
canonicalized request (messages, model, maxTokens, temperature, and
optional tools/toolChoice fingerprints), truncated to 16 hex characters.
PromptCache.Get/Set/Delete/Clear then operate on that key through the
shared internal/kv.Store.

# Strategy modes

none disables the cache outright. minimal skips the read for prompts
shorter than 50 characters. default always consults the cache.
aggressive is accepted but currently behaves as default.

# TTL policy

Set computes its entry's TTL from a Classification (type + complexity):
factual/mathematical doubles the base TTL, conversational halves it, simple
complexity multiplies by 1.5, very-complex divides by 1.5. At most one
multiplier applies; when both factual and simple are true, the larger wins.

# Failure semantics

Every KV error is logged and swallowed: a cache read failure is always a
miss, a cache write failure is always a no-op. The router never fails
because the cache is unavailable.
*/
package cache
