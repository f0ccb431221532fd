package timeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Event is one playback notification from the surface.
type Event struct {
	Position float64
	Ended    bool
}

var ErrInterrupted = errors.New("timeline: event stream closed before the sequence finished")

// Drive feeds events into s until it reaches a terminal state. Cancelling ctx
// aborts the sequence. s must already be started.
func (s *Sequencer) Drive(ctx context.Context, events <-chan Event) error {
	for !s.State().Terminal() {
		select {
		case <-ctx.Done():
			s.Abort()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.Abort()
				return ErrInterrupted
			}
			if err := s.handle(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sequencer) handle(ev Event) error {
	if ev.Ended {
		return s.OnEnded()
	}
	return s.OnPosition(ev.Position)
}

// PositionSource is sampled by a Poller.
type PositionSource interface {
	Sample() Event
}

// Poller drives a sequencer from a surface that exposes its position but
// does not push notifications.
type Poller struct {
	seq      *Sequencer
	source   PositionSource
	interval time.Duration
	logger   *slog.Logger
	running  atomic.Bool
}

func NewPoller(seq *Sequencer, source PositionSource, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Poller{
		seq:      seq,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Run samples the source every interval until the sequence is terminal or
// ctx is cancelled, in which case the sequence is aborted.
func (p *Poller) Run(ctx context.Context) error {
	if p.running.Swap(true) {
		return nil
	}
	defer p.running.Store(false)

	if p.logger != nil {
		p.logger.Debug("position poller started", "interval", p.interval)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for !p.seq.State().Terminal() {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Debug("position poller stopping")
			}
			p.seq.Abort()
			return ctx.Err()
		case <-ticker.C:
			if err := p.seq.handle(p.source.Sample()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Poller) IsRunning() bool {
	return p.running.Load()
}
