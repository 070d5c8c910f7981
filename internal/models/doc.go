// Package models resolves the broker's configured llm providers into
// eino ToolCallingChatModel instances: driver dispatch (factory.go), auth
// resolution (auth.go), lazy per-provider construction and context-window
// bookkeeping (registry.go), and SDK-error classification (errors.go).
// internal/upstream.NewModelConnector is the sole consumer: it asks a
// Registry for a provider by name (or its default) to back a session's
// ModelPort.
package models
