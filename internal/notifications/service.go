package notifications

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives committed ledger events
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MultiSink fans an event out to every sink. Individual failures are logged and
// swallowed because the state they describe is already committed.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Add registers another sink
func (m *MultiSink) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

// Emit always returns nil
func (m *MultiSink) Emit(ctx context.Context, event Event) error {
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			m.logger.Warn("Failed to emit event",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", string(event.Type)),
				zap.String("project_id", event.ProjectID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// LogSink writes each event to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.String("project_id", event.ProjectID.String()),
		zap.String("owner_id", event.OwnerID),
	}
	if event.Project != nil {
		fields = append(fields, zap.String("status", string(event.Project.Status)))
	}
	if event.Transaction != nil {
		fields = append(fields,
			zap.String("tx_ref", event.Transaction.TxRef),
			zap.Int64("tokens", event.Transaction.TokensMinted))
	}
	s.logger.Info("Ledger event", fields...)
	return nil
}
