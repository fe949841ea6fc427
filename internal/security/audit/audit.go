package audit

import (
	"context"
	"log/slog"
	"time"
)

type requestIDKey struct{}

// WithRequestID stores the request id audited alongside every action
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), now: time.Now}
}

func (al *Logger) LogAction(ctx context.Context, userID, role, action, resource, resourceID, status, details string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", al.now()),
	)
}

func (al *Logger) LogLogin(ctx context.Context, userID, role, source, status string) {
	al.LogAction(ctx, userID, role, "login", "session", "", status, source)
}

func (al *Logger) LogLogout(ctx context.Context, userID string) {
	al.LogAction(ctx, userID, "", "logout", "session", "", "success", "")
}

func (al *Logger) LogRoleSwitch(ctx context.Context, userID, from, to, status string) {
	al.LogAction(ctx, userID, to, "switch_role", "user", userID, status, "from="+from)
}

func (al *Logger) LogEntityChange(ctx context.Context, userID, role, action, collection, id, status string) {
	al.LogAction(ctx, userID, role, action, collection, id, status, "")
}

func (al *Logger) LogDenied(ctx context.Context, userID, role, reason string) {
	al.LogAction(ctx, userID, role, "access_denied", "api", "", "denied", reason)
}
