package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across LogTap.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldSessionID = "session_id"
	FieldClientID  = "client_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"
	FieldEngine    = "engine"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldQuery     = "query"
	FieldRule      = "rule"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount      = "count"
	FieldSize       = "size"
	FieldBatch      = "batch"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"
	FieldHits       = "hits"

	// Datasets
	FieldDatasetKey  = "dataset_key"
	FieldDatasetKind = "dataset_kind"
	FieldInputFormat = "input_format"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
)

// Context keys for propagating logging context
type contextKey string

const (
	sessionIDKey contextKey = "logger_session_id"
	clientIDKey  contextKey = "logger_client_id"
	componentKey contextKey = "logger_component"
)

// WithSessionID adds a scan session ID to the context for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithClientID adds a host connection ID to the context for logging
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		fields = append(fields, FieldSessionID, sessionID)
	}
	if clientID, ok := ctx.Value(clientIDKey).(string); ok && clientID != "" {
		fields = append(fields, FieldClientID, clientID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns base enriched with the fields carried by ctx.
// A nil base falls back to the global Logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Worker struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewWorker() *Worker {
//	    return &Worker{
//	        logger: logger.ComponentLogger("scanner.worker"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
