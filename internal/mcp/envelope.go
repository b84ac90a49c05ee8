// Package mcp implements the transport-agnostic MCP request/response
// engine: a named-tool registry, input validation, bounded-concurrency
// dispatch and the uniform {metadata, data, metrics, error} envelope.
package mcp

import (
	"errors"
	"time"

	"github.com/mosfin/analyst/internal/domain"
)

// Metadata describes one tool invocation.
type Metadata struct {
	AsOf       time.Time `json:"as_of"`
	Tool       string    `json:"tool"`
	DurationMS int64     `json:"duration_ms"`
}

// ErrorInfo is the normalised error block of an envelope. Type carries the
// domain error category; Field is set for validation failures.
type ErrorInfo struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Envelope is the uniform tool result shape shared by every MCP tool.
type Envelope struct {
	Metadata Metadata       `json:"metadata"`
	Data     any            `json:"data,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
	Error    *ErrorInfo     `json:"error,omitempty"`
}

// errorInfoFrom maps an error to the envelope error block without leaking
// internals: only the category, field and message cross the wire.
func errorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Type:    string(domain.Categorize(err)),
		Message: err.Error(),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		info.Field = de.Field
		info.Message = de.Message
	}
	return info
}
