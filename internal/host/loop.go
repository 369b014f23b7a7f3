package host

import (
	"context"
	"time"

	"github.com/woxQAQ/jsbridge/internal/script"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"go.uber.org/zap"
)

// Clock is the time source of the event loop.
type Clock interface {
	// Now returns the time elapsed since the loop started.
	Now() time.Duration
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct {
	start time.Time
}

// NewRealClock returns a wall clock starting at zero.
func NewRealClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LoopConfig holds event loop limits.
type LoopConfig struct {
	// MaxEvents bounds the number of events and timers one Run may
	// process. Zero means unlimited.
	MaxEvents int

	// IdleTimeout ends Run when the next timer is further away than
	// this. Zero means wait for any timer.
	IdleTimeout time.Duration
}

// Summary describes a finished Run.
type Summary struct {
	Events   int
	Timers   int
	Elapsed  time.Duration
	Deferred bool // timers were still queued when Run returned
}

// Loop delivers script events and timers to a guest, one at a time.
type Loop struct {
	host   *Host
	clock  Clock
	config LoopConfig
	logger *zap.Logger
	script *zap.Logger
}

// NewLoop creates an event loop for h. A nil clock uses the wall clock.
func NewLoop(h *Host, clock Clock, config LoopConfig, logger *zap.Logger) *Loop {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Loop{
		host:   h,
		clock:  clock,
		config: config,
		logger: logger.With(zap.String("component", "event-loop")),
		script: logger.With(zap.String("component", "script-console")),
	}
}

// Run processes events until nothing is queued, the next timer is beyond
// the idle timeout, or ctx is done. Queued events always run before the
// next timer.
func (l *Loop) Run(ctx context.Context, g Guest) (Summary, error) {
	var s Summary
	started := l.clock.Now()
	finish := func(err error) (Summary, error) {
		s.Elapsed = l.clock.Now() - started
		return s, err
	}

	engine := l.host.engine
	for {
		if err := l.flush(); err != nil {
			return finish(err)
		}
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if l.config.MaxEvents > 0 && s.Events+s.Timers >= l.config.MaxEvents {
			return finish(&EventLimitError{Max: l.config.MaxEvents})
		}

		ev, err := engine.Next()
		if err != nil {
			return finish(err)
		}
		if ev != nil {
			if err := l.dispatch(ctx, g, ev); err != nil {
				return finish(err)
			}
			s.Events++
			continue
		}

		tick, err := engine.Tick(l.clock.Now())
		if err != nil {
			return finish(err)
		}
		if tick.Ran {
			s.Timers++
			continue
		}
		if tick.Next < 0 {
			l.logger.Debug("Event loop idle", zap.Int("events", s.Events), zap.Int("timers", s.Timers))
			return finish(nil)
		}

		wait := time.Duration(tick.Next)*time.Millisecond - l.clock.Now()
		if l.config.IdleTimeout > 0 && wait > l.config.IdleTimeout {
			l.logger.Info("Next timer beyond idle timeout, stopping",
				zap.Duration("wait", wait),
				zap.Duration("idle_timeout", l.config.IdleTimeout),
			)
			s.Deferred = true
			return finish(nil)
		}
		if wait > 0 {
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return finish(err)
			}
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, g Guest, ev *script.Event) error {
	l.logger.Debug("Dispatching event",
		zap.String("kind", ev.Kind),
		zap.Uint32("id", ev.ID),
	)

	var err error
	switch ev.Kind {
	case script.EventObject:
		err = g.DispatchObject(ctx, ev.ID, ev.Object)
	case script.EventEmpty:
		err = g.DispatchEmpty(ctx, ev.ID)
	case script.EventFuture:
		var packed uint64
		packed, err = l.host.Pack(ctx, g, ev.Result)
		if err == nil {
			tag, value := protocol.Unpack(packed)
			err = g.WakeFuture(ctx, ev.ID, tag, value)
		}
	default:
		l.logger.Warn("Dropping unknown event", zap.String("kind", ev.Kind))
		return nil
	}
	if err != nil {
		return &DispatchError{Kind: ev.Kind, ID: ev.ID, Err: err}
	}
	return nil
}

func (l *Loop) flush() error {
	return l.host.engine.FlushConsole(l.script)
}
