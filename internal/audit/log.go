// Package audit records who changed what. Every state-changing API call
// produces one structured entry on the shared logger.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"guildhall.org/internal/auth"
	"guildhall.org/internal/guild"
	"guildhall.org/internal/ids"
	"guildhall.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and principal
// context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []any{
		slog.String("type", "audit"),
		slog.String("audit_id", ids.New()),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.String("principal", principal))
	}
	group := make([]any, 0, len(fields))
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	obs.Logger().InfoContext(ctx, "audit", attrs...)
	return nil
}

// Outcome logs the result of a guild operation: the event on success, or
// the event with a ".denied" suffix and the domain error code otherwise.
// Infrastructure failures are not audit events and are skipped.
func Outcome(ctx context.Context, event string, fields map[string]any, err error) {
	if err == nil {
		_ = LogEvent(ctx, event, fields)
		return
	}
	var derr *guild.Error
	if !errors.As(err, &derr) {
		return
	}
	denied := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		denied[k] = v
	}
	denied["code"] = derr.Code
	denied["reason"] = derr.Msg
	_ = LogEvent(ctx, event+".denied", denied)
}
