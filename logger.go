package perimeter

import (
	"context"

	glog "github.com/labstack/gommon/log"
)

// Logger receives gatekeeper diagnostics. The context parameter lets
// implementations tag lines with request-scoped data such as the
// correlation id.
type Logger interface {
	Info(ctx context.Context, format string, args ...any)
	Warning(ctx context.Context, format string, args ...any)
	Error(ctx context.Context, format string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(context.Context, string, ...any)    {}
func (NopLogger) Warning(context.Context, string, ...any) {}
func (NopLogger) Error(context.Context, string, ...any)   {}

// GommonLogger adapts gommon's leveled logger and prefixes each line with
// the correlation id from the context when present.
type GommonLogger struct {
	log *glog.Logger
}

// NewGommonLogger creates a [GommonLogger] with the given prefix.
func NewGommonLogger(prefix string) *GommonLogger {
	return &GommonLogger{log: glog.New(prefix)}
}

func (l *GommonLogger) Info(ctx context.Context, format string, args ...any) {
	l.log.Infof(l.withCorrelation(ctx, format), args...)
}

func (l *GommonLogger) Warning(ctx context.Context, format string, args ...any) {
	l.log.Warnf(l.withCorrelation(ctx, format), args...)
}

func (l *GommonLogger) Error(ctx context.Context, format string, args ...any) {
	l.log.Errorf(l.withCorrelation(ctx, format), args...)
}

func (l *GommonLogger) withCorrelation(ctx context.Context, format string) string {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return "[" + id + "] " + format
	}
	return format
}
