// Package review decides, when a recording finishes, whether the new clip is
// flagged for later fixing and whether the user is asked about it first.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/metrics"
)

type State string

const (
	// StateSaved: persisted unflagged.
	StateSaved State = "saved"
	// StateFlaggedAuto: persisted flagged without asking.
	StateFlaggedAuto State = "flagged_auto"
	// StatePromptPending: waiting for FixNow or JustFlag. Nothing is
	// persisted yet.
	StatePromptPending State = "prompt_pending"
	StateFixNow        State = "fix_now"
	StateJustFlagged   State = "just_flag"
)

// Terminal reports whether the workflow instance is finished.
func (s State) Terminal() bool {
	return s != StatePromptPending
}

var ErrNotPending = errors.New("review: prompt already resolved")

// Recording is a finished capture handed over by the capture collaborator.
type Recording struct {
	SessionID string
	Type      catalog.MediaType
	MimeType  string
	Payload   []byte
	// Duration is known for videos only.
	Duration *float64
	// Flagged is set when the user stopped with the flag action.
	Flagged bool
}

type Preferences interface {
	SuppressFlagPrompt(ctx context.Context) (bool, error)
	SetSuppressFlagPrompt(ctx context.Context, suppress bool) error
}

type MediaSaver interface {
	AddMediaItem(ctx context.Context, item *catalog.MediaItem) (*catalog.MediaItem, error)
}

// Navigator opens the trim/crop editor for a media item.
type Navigator interface {
	OpenEditor(ctx context.Context, mediaID string) error
}

type Workflow struct {
	saver  MediaSaver
	prefs  Preferences
	logger *slog.Logger
}

func NewWorkflow(saver MediaSaver, prefs Preferences, logger *slog.Logger) *Workflow {
	return &Workflow{saver: saver, prefs: prefs, logger: logger}
}

// Finish runs the workflow for a finished recording. Unflagged recordings and
// flagged ones with the prompt suppressed are persisted before Finish
// returns; otherwise the returned finalization is pending until resolved.
func (w *Workflow) Finish(ctx context.Context, rec Recording) (*Finalization, error) {
	if rec.Flagged && rec.Type != catalog.MediaTypeVideo {
		return nil, fmt.Errorf("%w: only video recordings can be flagged", catalog.ErrValidation)
	}

	f := &Finalization{
		mediaID: catalog.NewID(),
		w:       w,
		rec:     rec,
	}

	if !rec.Flagged {
		if err := f.persist(ctx, false, StateSaved); err != nil {
			return nil, err
		}
		return f, nil
	}

	suppress, err := w.prefs.SuppressFlagPrompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("read flag prompt preference: %w", err)
	}
	if suppress {
		if err := f.persist(ctx, true, StateFlaggedAuto); err != nil {
			return nil, err
		}
		return f, nil
	}

	f.state = StatePromptPending
	metrics.RecordFlagOutcome(string(StatePromptPending))
	if w.logger != nil {
		w.logger.Info("flag prompt pending", "media_id", f.mediaID, "session_id", rec.SessionID)
	}
	return f, nil
}

// Finalization is one run of the workflow for one recording.
type Finalization struct {
	mu      sync.Mutex
	mediaID string
	w       *Workflow
	rec     Recording
	state   State
	item    *catalog.MediaItem
}

// MediaID is the id the item has, or will have once persisted.
func (f *Finalization) MediaID() string {
	return f.mediaID
}

func (f *Finalization) SessionID() string {
	return f.rec.SessionID
}

func (f *Finalization) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Item returns the persisted media item, or nil while the prompt is pending.
func (f *Finalization) Item() *catalog.MediaItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item
}

// FixNow persists the clip flagged and then asks nav to open the editor on
// it. A navigation failure is returned after the clip is safely stored.
func (f *Finalization) FixNow(ctx context.Context, nav Navigator) (*catalog.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePromptPending {
		return nil, ErrNotPending
	}
	if err := f.persistLocked(ctx, true, StateFixNow, string(StateFixNow)); err != nil {
		return nil, err
	}

	if nav != nil {
		if err := nav.OpenEditor(ctx, f.item.ID); err != nil {
			return f.item, fmt.Errorf("open editor for %q: %w", f.item.ID, err)
		}
	}
	return f.item, nil
}

// JustFlag persists the clip flagged. With dontAskAgain the prompt is
// suppressed for future clips.
func (f *Finalization) JustFlag(ctx context.Context, dontAskAgain bool) (*catalog.MediaItem, error) {
	return f.justFlag(ctx, dontAskAgain, string(StateJustFlagged))
}

func (f *Finalization) justFlag(ctx context.Context, dontAskAgain bool, outcome string) (*catalog.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePromptPending {
		return nil, ErrNotPending
	}
	if err := f.persistLocked(ctx, true, StateJustFlagged, outcome); err != nil {
		return nil, err
	}

	if dontAskAgain {
		if err := f.w.prefs.SetSuppressFlagPrompt(ctx, true); err != nil {
			return f.item, fmt.Errorf("save flag prompt preference: %w", err)
		}
	}
	return f.item, nil
}

func (f *Finalization) persist(ctx context.Context, trimNeeded bool, next State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistLocked(ctx, trimNeeded, next, string(next))
}

// persistLocked stores the clip, moves to next and counts the resolution
// once under outcome. On failure the state is left as it was so the caller
// can retry.
func (f *Finalization) persistLocked(ctx context.Context, trimNeeded bool, next State, outcome string) error {
	item, err := f.w.saver.AddMediaItem(ctx, &catalog.MediaItem{
		ID:         f.mediaID,
		SessionID:  f.rec.SessionID,
		Type:       f.rec.Type,
		MimeType:   f.rec.MimeType,
		Payload:    f.rec.Payload,
		Duration:   f.rec.Duration,
		TrimNeeded: trimNeeded,
	})
	if err != nil {
		return err
	}

	f.item = item
	f.state = next
	metrics.RecordFlagOutcome(outcome)
	if f.w.logger != nil {
		f.w.logger.Info("recording finalized",
			"media_id", item.ID,
			"session_id", item.SessionID,
			"state", next,
			"trim_needed", trimNeeded,
		)
	}
	return nil
}
