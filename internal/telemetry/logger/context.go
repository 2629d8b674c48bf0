package logger

import "context"

type contextKey string

const (
	loggerKey      contextKey = "meshsync.logger"
	operationIDKey contextKey = "meshsync.operation_id"
	workspaceIDKey contextKey = "meshsync.workspace_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithOperationID tags the context with the id of a sync operation.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext extracts the operation id from context.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithWorkspaceID tags the context with the workspace being synced.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, id)
}

// WorkspaceIDFromContext extracts the workspace id from context.
func WorkspaceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(workspaceIDKey).(string); ok {
		return id
	}
	return ""
}

// L is a shorthand for FromContext that also enriches the logger with the
// operation and workspace ids from the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id := OperationIDFromContext(ctx); id != "" {
		l = l.With("operation_id", id)
	}
	if id := WorkspaceIDFromContext(ctx); id != "" {
		l = l.With("workspace_id", id)
	}
	return l
}
