package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// observeOperation records appshell.<operation>.total and .duration_ms tagged
// with operation, status and kind, then logs the outcome.
func (s *Shell) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	operation = operationName(operation)
	elapsed := time.Since(startedAt)

	status, level := "success", LevelInfo
	if err != nil {
		status, level = "failure", LevelError
	}
	tags := map[string]string{"operation": operation, "status": status}
	if kind, ok := fields["service_kind"].(string); ok && kind != "" {
		tags["kind"] = kind
	}
	if s.metricsRecorder != nil {
		prefix := "appshell." + operation
		s.metricsRecorder.IncCounter(ctx, prefix+".total", 1, tags)
		s.metricsRecorder.ObserveHistogram(ctx, prefix+".duration_ms", float64(elapsed.Milliseconds()), tags)
	}

	entry := CloneFields(fields)
	entry["event_type"] = operation
	entry["status"] = status
	entry["duration_ms"] = elapsed.Milliseconds()
	message := operation + " succeeded"
	if err != nil {
		message = operation + " failed"
		entry["error"] = err.Error()
		if mapped := MapError(err); mapped != nil {
			entry["error_text_code"] = mapped.TextCode
		}
	}
	Log(ctx, s.Logger(), level, message, entry)
}

// Log writes message at level through logger. Fields go through WithFields
// when the logger supports it and are always appended as sorted key/value
// args. Unknown levels log at info.
func Log(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(CloneFields(fields))
	}
	args := FlattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelError:
		logger.Error(message, args...)
	case LevelWarn:
		logger.Warn(message, args...)
	case LevelDebug:
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// CloneFields returns a shallow copy that is never nil.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	maps.Copy(out, fields)
	return out
}

// FlattenFields turns a field map into key/value logger args sorted by key.
func FlattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func operationName(operation string) string {
	operation = strings.ToLower(strings.TrimSpace(operation))
	operation = strings.NewReplacer(" ", "_", "-", "_").Replace(operation)
	if operation == "" {
		return "unknown"
	}
	return operation
}
