package notification

import (
	"context"
	"slices"
	"sync"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/reconcile"
)

// Sink receives notifications. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// TypeFilter is implemented by sinks that only want some notification types.
type TypeFilter interface {
	SupportsType(t Type) bool
}

// ReportPublisher receives the raw save report, for sinks that forward it
// verbatim rather than as human-readable notifications.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r *reconcile.Report) error
}

// Service fans notifications out to every registered sink.
type Service struct {
	mu         sync.RWMutex
	sinks      []Sink
	publishers []ReportPublisher
	log        logger.Logger
}

// NewService creates a service delivering to sinks.
func NewService(log logger.Logger, sinks ...Sink) *Service {
	if log == nil {
		log = logger.Global().Module("notification")
	}
	return &Service{sinks: slices.Clone(sinks), log: log}
}

// AddSink registers another sink.
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// AddPublisher registers a report publisher.
func (s *Service) AddPublisher(p ReportPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, p)
}

// Notify delivers n to every sink that accepts its type. A failing sink does
// not stop delivery to the others; all failures are joined into the result.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	s.mu.RLock()
	sinks := slices.Clone(s.sinks)
	s.mu.RUnlock()

	var errs []error
	for _, sink := range sinks {
		if f, ok := sink.(TypeFilter); ok && !f.SupportsType(n.Type) {
			continue
		}
		if err := sink.Deliver(ctx, n.Clone()); err != nil {
			s.log.Warn("notification delivery failed",
				logger.String("sink", sink.Name()),
				logger.String("notification_id", n.ID),
				logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishReport converts a save report into notifications, delivers them and
// hands the report itself to every publisher.
func (s *Service) PublishReport(ctx context.Context, r *reconcile.Report) error {
	if r == nil {
		return nil
	}

	var errs []error
	for _, n := range FromReport(r) {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.RLock()
	publishers := slices.Clone(s.publishers)
	s.mu.RUnlock()
	for _, p := range publishers {
		if err := p.PublishReport(ctx, r); err != nil {
			s.log.Warn("report publish failed",
				logger.String("batch_id", r.BatchID),
				logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Global().Module("notification")
	}
	return &LogSink{log: log}
}

// Name implements Sink.
func (l *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (l *LogSink) Deliver(_ context.Context, n *Notification) error {
	fields := []logger.Field{
		logger.String("notification_id", n.ID),
		logger.String("title", n.Title),
		logger.String("message", n.Message),
	}
	if n.Component != "" {
		fields = append(fields, logger.String("component", n.Component))
	}
	for _, key := range []string{MetadataBatchID, MetadataFileID, MetadataRow} {
		if v, ok := n.Metadata[key]; ok {
			fields = append(fields, logger.Any(key, v))
		}
	}

	switch n.Type {
	case TypeError:
		l.log.Error("notification", fields...)
	case TypeWarning:
		l.log.Warn("notification", fields...)
	default:
		l.log.Info("notification", fields...)
	}
	return nil
}
