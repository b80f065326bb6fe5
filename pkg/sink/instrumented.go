package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
	"github.com/ajitpratap0/emarsys-tap/pkg/metrics"
)

// Instrumented counts and logs every batch passed to the wrapped sink.
type Instrumented struct {
	core.Sink
	logger *zap.Logger
}

// NewInstrumented wraps sink
func NewInstrumented(sink core.Sink, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{Sink: sink, logger: logger}
}

// Write forwards records and records the count once the write succeeded
func (i *Instrumented) Write(ctx context.Context, stream string, records []core.Record) error {
	if err := i.Sink.Write(ctx, stream, records); err != nil {
		return err
	}
	metrics.RecordsEmitted.WithLabelValues(stream).Add(float64(len(records)))
	i.logger.Info("records written", zap.String("stream", stream), zap.Int("count", len(records)))
	return nil
}

// Unwrap returns the wrapped sink
func (i *Instrumented) Unwrap() core.Sink {
	return i.Sink
}
