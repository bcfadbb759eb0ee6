package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one manager operation and logs its outcome at debug level.
type Span struct {
	logger *slog.Logger
	start  time.Time
}

// StartSpan opens a span named name under ctx. The first span of a request takes
// the request id as its trace id; nested spans record their parent. attrs are added
// to the logger stored on the returned context.
func StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := FromContext(ctx)

	if TraceIDFromContext(ctx) == "" {
		traceID := RequestIDFromContext(ctx)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = withID(ctx, traceIDKey, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	fields := []any{slog.String("span_id", spanID), slog.String("span_name", name)}
	if parent := SpanIDFromContext(ctx); parent != "" {
		fields = append(fields, slog.String("parent_span_id", parent))
	}
	logger = logger.With(append(fields, attrs...)...)

	ctx = withID(ctx, spanIDKey, spanID)
	ctx = WithLogger(ctx, logger)
	return ctx, &Span{logger: logger, start: time.Now()}
}

// End logs the span duration, and err when the operation failed.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Debug("span failed", elapsed, slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
