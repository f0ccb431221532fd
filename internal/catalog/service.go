package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/clipreel/internal/metrics"
)

const maxSessionNameLen = 200

type CatalogService interface {
	CreateSession(ctx context.Context, name string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	RenameSession(ctx context.Context, id, name string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AddMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error)
	GetMediaItem(ctx context.Context, id string) (*MediaItem, error)
	GetMediaForSession(ctx context.Context, sessionID string) ([]*MediaItem, error)
	EditMedia(ctx context.Context, id string, edit MediaEdit) (*MediaItem, error)
	ReorderMediaItems(ctx context.Context, sessionID string, orderedIDs []string) error

	SuppressFlagPrompt(ctx context.Context) (bool, error)
	SetSuppressFlagPrompt(ctx context.Context, suppress bool) error
}

// MediaEdit describes a partial edit of an item's metadata. Nil fields are
// left as stored; the Clear flags remove an optional value.
type MediaEdit struct {
	Duration    *float64
	TrimEndTime *float64
	ClearTrim   bool
	Crop        *Crop
	ClearCrop   bool
	TrimNeeded  *bool
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) CreateSession(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Session " + s.now().Format("2006-01-02 15:04")
	}
	if len([]rune(name)) > maxSessionNameLen {
		return nil, fmt.Errorf("%w: session name longer than %d characters", ErrValidation, maxSessionNameLen)
	}

	start := time.Now()
	session, err := s.repo.CreateSession(ctx, name)
	observe("create_session", start, err)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("session created", "session_id", session.ID, "name", session.Name)
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	start := time.Now()
	session, err := s.repo.GetSession(ctx, id)
	observe("get_session", start, err)
	return session, err
}

func (s *Service) ListSessions(ctx context.Context) ([]*Session, error) {
	start := time.Now()
	sessions, err := s.repo.ListSessions(ctx)
	observe("list_sessions", start, err)
	return sessions, err
}

func (s *Service) RenameSession(ctx context.Context, id, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: session name is required", ErrValidation)
	}
	if len([]rune(name)) > maxSessionNameLen {
		return nil, fmt.Errorf("%w: session name longer than %d characters", ErrValidation, maxSessionNameLen)
	}

	start := time.Now()
	session, err := s.repo.RenameSession(ctx, id, name)
	observe("rename_session", start, err)
	return session, err
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	start := time.Now()
	err := s.repo.DeleteSession(ctx, id)
	observe("delete_session", start, err)
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("session deleted", "session_id", id)
	}
	return nil
}

func (s *Service) AddMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error) {
	start := time.Now()
	added, err := s.repo.AddMediaItem(ctx, item)
	observe("add_media_item", start, err)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to add media item", "session_id", item.SessionID, "error", err)
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("media item added",
			"session_id", added.SessionID,
			"media_id", added.ID,
			"type", added.Type,
			"order", added.Order,
			"trim_needed", added.TrimNeeded,
		)
	}
	return added, nil
}

func (s *Service) GetMediaItem(ctx context.Context, id string) (*MediaItem, error) {
	start := time.Now()
	item, err := s.repo.GetMediaItem(ctx, id)
	observe("get_media_item", start, err)
	return item, err
}

func (s *Service) GetMediaForSession(ctx context.Context, sessionID string) ([]*MediaItem, error) {
	start := time.Now()
	items, err := s.repo.GetMediaForSession(ctx, sessionID)
	observe("get_media_for_session", start, err)
	return items, err
}

// EditMedia applies edit to the stored item through a single UpdateMediaItem.
func (s *Service) EditMedia(ctx context.Context, id string, edit MediaEdit) (*MediaItem, error) {
	item, err := s.GetMediaItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if edit.Duration != nil {
		item.Duration = edit.Duration
	}
	switch {
	case edit.ClearTrim:
		item.TrimEndTime = nil
	case edit.TrimEndTime != nil:
		item.TrimEndTime = edit.TrimEndTime
	}
	switch {
	case edit.ClearCrop:
		item.Crop = nil
	case edit.Crop != nil:
		item.Crop = edit.Crop
	}
	if edit.TrimNeeded != nil {
		item.TrimNeeded = *edit.TrimNeeded
	}

	start := time.Now()
	updated, err := s.repo.UpdateMediaItem(ctx, item)
	observe("update_media_item", start, err)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("media item updated", "media_id", updated.ID, "session_id", updated.SessionID)
	}
	return updated, nil
}

// SaveTrim stores a trim boundary and, when known, the trimmed duration.
func (s *Service) SaveTrim(ctx context.Context, id string, trimEnd float64, duration *float64) (*MediaItem, error) {
	return s.EditMedia(ctx, id, MediaEdit{TrimEndTime: &trimEnd, Duration: duration})
}

// SetCrop stores crop, or removes the crop when crop is nil.
func (s *Service) SetCrop(ctx context.Context, id string, crop *Crop) (*MediaItem, error) {
	return s.EditMedia(ctx, id, MediaEdit{Crop: crop, ClearCrop: crop == nil})
}

func (s *Service) SetTrimNeeded(ctx context.Context, id string, needed bool) (*MediaItem, error) {
	return s.EditMedia(ctx, id, MediaEdit{TrimNeeded: &needed})
}

func (s *Service) ReorderMediaItems(ctx context.Context, sessionID string, orderedIDs []string) error {
	start := time.Now()
	err := s.repo.ReorderMediaItems(ctx, sessionID, orderedIDs)
	observe("reorder_media_items", start, err)
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("media items reordered", "session_id", sessionID, "count", len(orderedIDs))
	}
	return nil
}

func (s *Service) SuppressFlagPrompt(ctx context.Context) (bool, error) {
	value, err := s.repo.GetPreference(ctx, PrefSuppressFlagPrompt)
	if err != nil {
		return false, err
	}
	if value == "" {
		return false, nil
	}
	suppress, err := strconv.ParseBool(value)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("ignoring malformed preference", "key", PrefSuppressFlagPrompt, "value", value)
		}
		return false, nil
	}
	return suppress, nil
}

func (s *Service) SetSuppressFlagPrompt(ctx context.Context, suppress bool) error {
	return s.repo.SetPreference(ctx, PrefSuppressFlagPrompt, strconv.FormatBool(suppress))
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveStoreOp(op, Outcome(err), time.Since(start))
}

// Outcome classifies err for metrics and API responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "error"
	}
}
