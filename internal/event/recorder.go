package event

import (
	"context"
	"log/slog"
	"sync"
)

// Counter receives one increment per recorded event.
type Counter interface {
	IdentityEvent(eventType string)
}

// Recorder drains a bus subscription into audit log lines and lifecycle
// counters until Stop is called or the context ends.
type Recorder struct {
	bus     Bus
	counter Counter
	logger  *slog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRecorder(bus Bus, counter Counter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		bus:     bus,
		counter: counter,
		logger:  logger.With("component", "audit"),
		done:    make(chan struct{}),
	}
}

func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	events, unsubscribe := r.bus.Subscribe()

	go func() {
		defer close(r.done)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				r.record(ctx, e)
			}
		}
	}()
}

// Stop ends the consumer goroutine and waits for it to exit.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

func (r *Recorder) record(ctx context.Context, e Event) {
	attrs := []any{
		"event_id", e.ID,
		"event_type", string(e.Type),
		"subject_id", e.SubjectID,
		"at", e.Timestamp,
	}
	if e.ActorID != "" {
		attrs = append(attrs, "actor_id", e.ActorID)
	}
	for k, v := range e.Attrs {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	if e.Type == TypePasswordResetFailed {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "identity event", attrs...)

	if r.counter != nil {
		r.counter.IdentityEvent(string(e.Type))
	}
}
