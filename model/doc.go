// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside NovelMesh.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Resolve "provider/model" identifiers to concrete models (Resolver)
//   - Throttle provider traffic (RateLimited)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so agents remain decoupled from vendor SDKs.
package model
