// Package events delivers JobUpdateEvents to observers.
package events

import (
	"context"
	"sync"
	"time"

	"command-center/core/models"

	"github.com/sirupsen/logrus"
)

// Emitter receives job update events. Emit never fails the job that calls it.
type Emitter interface {
	Emit(ctx context.Context, event models.JobUpdateEvent)
}

// Sink is a single observer. A sink error is logged and otherwise ignored.
type Sink interface {
	Emit(ctx context.Context, event models.JobUpdateEvent) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, event models.JobUpdateEvent) error

func (f SinkFunc) Emit(ctx context.Context, event models.JobUpdateEvent) error {
	return f(ctx, event)
}

// Fanout delivers every event to every registered sink in order
type Fanout struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	order  []string
	logger *logrus.Logger
	now    func() time.Time
}

// NewFanout creates an emitter with no sinks
func NewFanout(logger *logrus.Logger) *Fanout {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fanout{
		sinks:  make(map[string]Sink),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a named sink, replacing any sink with the same name
func (f *Fanout) Register(name string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sinks[name]; !ok {
		f.order = append(f.order, name)
	}
	f.sinks[name] = sink
}

// Emit stamps the event and hands it to each sink
func (f *Fanout) Emit(ctx context.Context, event models.JobUpdateEvent) {
	if event.At.IsZero() {
		event.At = f.now()
	}
	if event.Logs == nil {
		event.Logs = []string{}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, name := range f.order {
		if err := f.sinks[name].Emit(ctx, event); err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"sink":   name,
				"job_id": event.ID,
				"status": event.Status,
			}).Warn("Failed to deliver job event")
		}
	}
}

// LogSink writes each event to the log
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a new log sink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event models.JobUpdateEvent) error {
	entry := s.logger.WithFields(logrus.Fields{
		"job_id": event.ID,
		"status": event.Status,
	})
	if event.PrDetails != nil {
		entry = entry.WithField("pr", event.PrDetails.URL)
	}
	for _, line := range event.Logs {
		entry.Info(line)
	}
	if len(event.Logs) == 0 {
		entry.Info("Job status updated")
	}
	return nil
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []models.JobUpdateEvent
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, event models.JobUpdateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns the recorded events, optionally filtered by job id
func (r *Recorder) Events(jobID string) []models.JobUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.JobUpdateEvent, 0, len(r.events))
	for _, e := range r.events {
		if jobID == "" || e.ID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// Statuses returns the status sequence recorded for one job
func (r *Recorder) Statuses(jobID string) []models.JobStatus {
	events := r.Events(jobID)
	out := make([]models.JobStatus, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}
