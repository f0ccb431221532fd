package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heimdex/clipreel/internal/metrics"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhaseAdvancing
	PhaseHeld
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhaseAdvancing:
		return "advancing"
	case PhaseHeld:
		return "held"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a sequencer state. Index is the current clip for Playing and
// Held, the clip just finished for Advancing, and -1 otherwise.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	switch s.Phase {
	case PhasePlaying, PhaseAdvancing, PhaseHeld:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	default:
		return s.Phase.String()
	}
}

// Terminal reports whether no further transition other than Abort can happen.
func (s State) Terminal() bool {
	return s.Phase == PhaseDone || s.Phase == PhaseAborted || s.Phase == PhaseHeld
}

// Surface is the playback surface driven by the sequencer.
type Surface interface {
	// Load starts c at position 0.
	Load(c Clip) error
	// Hold pauses and pins the position.
	Hold(position float64) error
	// Release gives the surface back; no further calls follow.
	Release()
}

var ErrNotIdle = errors.New("timeline: sequence already started")

// Sequencer is the merge playback state machine. Position and ended
// notifications are only acted on while a clip is playing; anything else is
// ignored so late or duplicate notifications are harmless.
type Sequencer struct {
	mu       sync.Mutex
	surface  Surface
	clips    []Clip
	clamp    bool
	state    State
	observer func(State)
	logger   *slog.Logger
}

type Option func(*Sequencer)

// WithObserver registers fn to receive every transition, including the
// transient Advancing state. fn runs after the sequencer's lock is released.
func WithObserver(fn func(State)) Option {
	return func(s *Sequencer) {
		s.observer = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

func NewSequencer(surface Surface, clips []Clip, opts ...Option) *Sequencer {
	s := &Sequencer{
		surface: surface,
		clips:   append([]Clip(nil), clips...),
		state:   State{Phase: PhaseIdle, Index: -1},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPreview plays a single clip. Reaching its trim boundary holds the
// surface at the boundary instead of advancing.
func NewPreview(surface Surface, clip Clip, opts ...Option) *Sequencer {
	s := NewSequencer(surface, []Clip{clip}, opts...)
	s.clamp = true
	return s
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start loads the first playable clip. An empty or fully skipped sequence
// goes straight to Done without touching the surface.
func (s *Sequencer) Start() error {
	var trail []State
	defer func() { s.notify(trail) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseIdle {
		return ErrNotIdle
	}
	return s.playFrom(0, &trail)
}

// OnPosition reports the playback position of the current clip.
func (s *Sequencer) OnPosition(position float64) error {
	var trail []State
	defer func() { s.notify(trail) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhasePlaying {
		return nil
	}
	end, bounded := EffectiveEnd(s.clips[s.state.Index])
	if !bounded || !ShouldAdvance(position, end) {
		return nil
	}

	// Only a trim boundary holds the preview; a known duration is its
	// natural end.
	if s.clamp && s.clips[s.state.Index].TrimEnd != nil {
		if err := s.surface.Hold(end); err != nil {
			s.abort(&trail)
			return fmt.Errorf("hold clip %q at %.3fs: %w", s.clips[s.state.Index].ID, end, err)
		}
		s.set(State{Phase: PhaseHeld, Index: s.state.Index}, &trail)
		return nil
	}
	return s.advance(&trail)
}

// OnEnded reports that the current clip reached its natural end.
func (s *Sequencer) OnEnded() error {
	var trail []State
	defer func() { s.notify(trail) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhasePlaying {
		return nil
	}
	return s.advance(&trail)
}

// Abort discards the sequence and releases the surface. Persisted data is
// never touched.
func (s *Sequencer) Abort() {
	var trail []State
	defer func() { s.notify(trail) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.abort(&trail)
}

func (s *Sequencer) advance(trail *[]State) error {
	i := s.state.Index
	s.set(State{Phase: PhaseAdvancing, Index: i}, trail)
	return s.playFrom(i+1, trail)
}

// playFrom loads the first playable clip at or after index i.
func (s *Sequencer) playFrom(i int, trail *[]State) error {
	for ; i < len(s.clips); i++ {
		clip := s.clips[i]
		if Skippable(clip) {
			if s.logger != nil {
				s.logger.Debug("skipping clip with empty play range", "clip_id", clip.ID, "index", i)
			}
			continue
		}

		if err := s.surface.Load(clip); err != nil {
			s.abort(trail)
			return fmt.Errorf("load clip %q: %w", clip.ID, err)
		}
		s.set(State{Phase: PhasePlaying, Index: i}, trail)
		return nil
	}

	s.set(State{Phase: PhaseDone, Index: -1}, trail)
	return nil
}

func (s *Sequencer) abort(trail *[]State) {
	if s.state.Phase == PhaseAborted {
		return
	}
	s.surface.Release()
	s.clips = nil
	s.set(State{Phase: PhaseAborted, Index: -1}, trail)
}

func (s *Sequencer) set(next State, trail *[]State) {
	s.state = next
	*trail = append(*trail, next)
}

func (s *Sequencer) notify(trail []State) {
	for _, st := range trail {
		metrics.RecordTransition(st.Phase.String())
		if s.logger != nil {
			s.logger.Debug("sequencer transition", "state", st.String())
		}
		if s.observer != nil {
			s.observer(st)
		}
	}
}
