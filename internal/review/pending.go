package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

const expiredOutcome = "expired"

// PendingPrompts keeps unresolved finalizations, keyed by media id, until the
// UI answers the prompt. A prompt left unanswered for longer than the TTL is
// resolved as JustFlag without remembering the preference, so the recording
// is still stored.
type PendingPrompts struct {
	cache   *cache.Cache
	logger  *slog.Logger
	timeout time.Duration
}

func NewPendingPrompts(ttl time.Duration, logger *slog.Logger) *PendingPrompts {
	cleanup := ttl / 4
	if cleanup < time.Second {
		cleanup = time.Second
	}

	p := &PendingPrompts{
		cache:   cache.New(ttl, cleanup),
		logger:  logger,
		timeout: 10 * time.Second,
	}
	p.cache.OnEvicted(p.evicted)
	return p
}

// Add registers f if it is pending; resolved finalizations are ignored.
func (p *PendingPrompts) Add(f *Finalization) {
	if f.State() != StatePromptPending {
		return
	}
	p.cache.Set(f.MediaID(), f, cache.DefaultExpiration)
}

func (p *PendingPrompts) Get(mediaID string) (*Finalization, bool) {
	if x, found := p.cache.Get(mediaID); found {
		return x.(*Finalization), true
	}
	return nil, false
}

// Remove forgets a prompt. Resolve the finalization first: a prompt that is
// still pending when removed is resolved as JustFlag.
func (p *PendingPrompts) Remove(mediaID string) {
	p.cache.Delete(mediaID)
}

func (p *PendingPrompts) Len() int {
	return p.cache.ItemCount()
}

// Drain resolves every remaining prompt as JustFlag and empties the registry.
func (p *PendingPrompts) Drain() {
	p.cache.DeleteExpired()
	for id := range p.cache.Items() {
		p.cache.Delete(id)
	}
}

func (p *PendingPrompts) evicted(mediaID string, v interface{}) {
	f, ok := v.(*Finalization)
	if !ok || f.State() != StatePromptPending {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := f.justFlag(ctx, false, expiredOutcome); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to store unanswered flagged recording",
				"media_id", mediaID, "session_id", f.SessionID(), "error", err)
		}
		return
	}
	if p.logger != nil {
		p.logger.Info("flag prompt unanswered, recording stored flagged", "media_id", mediaID)
	}
}
