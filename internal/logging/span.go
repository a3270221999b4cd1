package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one stage of command handling, such as token acquisition or the
// outbound generation call.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a child span from ctx. The returned context carries a
// logger annotated with the span and correlation identifiers.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)
	parentSpanID := SpanIDFromContext(ctx)
	spanID := uuid.NewString()

	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}

	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// End emits a debug entry with the span duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.logger.Debug("span completed", slog.Duration("duration", time.Since(s.start)))
}
