package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heimdex/clipreel/internal/db"
)

// Repository is the store engine. Every method is atomic: it either applies
// all of its effects or none of them are visible to later reads.
type Repository interface {
	CreateSession(ctx context.Context, name string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	RenameSession(ctx context.Context, id, name string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AddMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error)
	GetMediaItem(ctx context.Context, id string) (*MediaItem, error)
	GetMediaForSession(ctx context.Context, sessionID string) ([]*MediaItem, error)
	UpdateMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error)
	ReorderMediaItems(ctx context.Context, sessionID string, orderedIDs []string) error

	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db  *db.DB
	now func() time.Time
}

type RepositoryOption func(*SQLiteRepository)

// WithClock replaces the wall clock used to stamp createdAt and lastModified.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

func NewRepository(database *db.DB, opts ...RepositoryOption) *SQLiteRepository {
	r := &SQLiteRepository{db: database, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const sessionColumns = `id, name, created_at, last_modified, item_count`

const mediaColumns = `id, session_id, type, mime_type, payload, created_at, duration,
	trim_needed, trim_end_time, crop_x, crop_y, crop_width, crop_height, item_order`

func (r *SQLiteRepository) CreateSession(ctx context.Context, name string) (*Session, error) {
	now := stamp(r.now())
	s := &Session{
		ID:           NewID(),
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
	}

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO sessions (id, name, created_at, last_modified, item_count)
		VALUES (?, ?, ?, ?, 0)
	`, s.ID, s.Name, s.CreatedAt.UnixNano(), s.LastModified.UnixNano())
	if err != nil {
		return nil, storageErr("create session", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	s, err := getSession(ctx, r.db.Conn(), id)
	return s, storageErr("get session", err)
}

func (r *SQLiteRepository) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions ORDER BY last_modified DESC, rowid ASC
	`)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storageErr("list sessions", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, storageErr("list sessions", rows.Err())
}

func (r *SQLiteRepository) RenameSession(ctx context.Context, id, name string) (*Session, error) {
	var renamed *Session
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		s.Name = name
		s.LastModified = nextModified(s.LastModified, r.now())

		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET name = ?, last_modified = ? WHERE id = ?
		`, s.Name, s.LastModified.UnixNano(), s.ID); err != nil {
			return err
		}
		renamed = s
		return nil
	})
	if err != nil {
		return nil, storageErr("rename session", err)
	}
	return renamed, nil
}

// DeleteSession removes the session and every media item it owns in one
// transaction. Unknown ids are a no-op.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM media_items WHERE session_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		return err
	})
	return storageErr("delete session", err)
}

// AddMediaItem appends item to the tail of its session and bumps the session
// aggregate in the same transaction. The stored record is returned; item is
// not modified.
func (r *SQLiteRepository) AddMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if len(item.Payload) == 0 {
		return nil, fmt.Errorf("%w: media payload is empty", ErrValidation)
	}

	var added *MediaItem
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := getSession(ctx, tx, item.SessionID)
		if err != nil {
			return err
		}

		if item.ID != "" {
			var taken int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM media_items WHERE id = ?", item.ID,
			).Scan(&taken); err != nil {
				return err
			}
			if taken > 0 {
				return fmt.Errorf("%w: media item %q already exists", ErrValidation, item.ID)
			}
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM media_items WHERE session_id = ?", s.ID,
		).Scan(&count); err != nil {
			return err
		}

		now := stamp(r.now())
		next := *item
		if next.ID == "" {
			next.ID = NewID()
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		} else {
			next.CreatedAt = stamp(next.CreatedAt)
		}
		next.Order = count

		cropX, cropY, cropW, cropH := cropColumns(next.Crop)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (`+mediaColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, next.ID, next.SessionID, string(next.Type), nullString(next.MimeType), next.Payload,
			next.CreatedAt.UnixNano(), nullFloat(next.Duration), boolToInt(next.TrimNeeded),
			nullFloat(next.TrimEndTime), cropX, cropY, cropW, cropH, next.Order); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET item_count = item_count + 1, last_modified = ? WHERE id = ?
		`, nextModified(s.LastModified, now).UnixNano(), s.ID); err != nil {
			return err
		}

		added = &next
		return nil
	})
	if err != nil {
		return nil, storageErr("add media item", err)
	}
	return added, nil
}

func (r *SQLiteRepository) GetMediaItem(ctx context.Context, id string) (*MediaItem, error) {
	m, err := getMediaItem(ctx, r.db.Conn(), id)
	return m, storageErr("get media item", err)
}

// GetMediaForSession returns the session's items by order. Equal orders are
// not a supported state; they fall back to creation time.
func (r *SQLiteRepository) GetMediaForSession(ctx context.Context, sessionID string) ([]*MediaItem, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items WHERE session_id = ?
		ORDER BY item_order ASC, created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, storageErr("get media for session", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, storageErr("get media for session", err)
		}
		items = append(items, m)
	}
	return items, storageErr("get media for session", rows.Err())
}

// UpdateMediaItem overwrites the edit metadata of a stored item and bumps the
// owning session's lastModified. Payload, type, creation time and order are
// kept from the stored record.
func (r *SQLiteRepository) UpdateMediaItem(ctx context.Context, item *MediaItem) (*MediaItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	var updated *MediaItem
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stored, err := getMediaItem(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if item.SessionID != "" && item.SessionID != stored.SessionID {
			return fmt.Errorf("%w: media item %q belongs to session %q", ErrValidation, stored.ID, stored.SessionID)
		}
		if item.Type != stored.Type {
			return fmt.Errorf("%w: media type cannot change", ErrValidation)
		}

		s, err := getSession(ctx, tx, stored.SessionID)
		if err != nil {
			return err
		}

		next := *stored
		next.Duration = item.Duration
		next.TrimNeeded = item.TrimNeeded
		next.TrimEndTime = item.TrimEndTime
		next.Crop = item.Crop

		cropX, cropY, cropW, cropH := cropColumns(next.Crop)
		if _, err := tx.ExecContext(ctx, `
			UPDATE media_items
			SET duration = ?, trim_needed = ?, trim_end_time = ?,
				crop_x = ?, crop_y = ?, crop_width = ?, crop_height = ?
			WHERE id = ?
		`, nullFloat(next.Duration), boolToInt(next.TrimNeeded), nullFloat(next.TrimEndTime),
			cropX, cropY, cropW, cropH, next.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET last_modified = ? WHERE id = ?
		`, nextModified(s.LastModified, r.now()).UnixNano(), s.ID); err != nil {
			return err
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, storageErr("update media item", err)
	}
	return updated, nil
}

// ReorderMediaItems assigns order = index for each id. orderedIDs must be
// exactly a permutation of the session's current items. Reordering is not a
// content change, so lastModified is left alone.
func (r *SQLiteRepository) ReorderMediaItems(ctx context.Context, sessionID string, orderedIDs []string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}

		existing, err := mediaIDs(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := checkPermutation(existing, orderedIDs); err != nil {
			return err
		}

		for i, id := range orderedIDs {
			if _, err := tx.ExecContext(ctx,
				"UPDATE media_items SET item_order = ? WHERE id = ? AND session_id = ?",
				i, id, sessionID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("reorder media items", err)
}

func (r *SQLiteRepository) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Conn().QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, storageErr("get preference", err)
}

func (r *SQLiteRepository) SetPreference(ctx context.Context, key, value string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return storageErr("set preference", err)
}

func checkPermutation(existing, orderedIDs []string) error {
	if len(orderedIDs) != len(existing) {
		return fmt.Errorf("%w: reorder lists %d items, session has %d", ErrValidation, len(orderedIDs), len(existing))
	}

	remaining := make(map[string]bool, len(existing))
	for _, id := range existing {
		remaining[id] = true
	}
	for _, id := range orderedIDs {
		if !remaining[id] {
			return fmt.Errorf("%w: %q is duplicated or not in the session", ErrValidation, id)
		}
		delete(remaining, id)
	}
	return nil
}

func mediaIDs(ctx context.Context, q querier, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM media_items WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getSession(ctx context.Context, q querier, id string) (*Session, error) {
	row := q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, notFound("session", id)
	}
	return s, err
}

func getMediaItem(ctx context.Context, q querier, id string) (*MediaItem, error) {
	row := q.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_items WHERE id = ?", id)
	m, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, notFound("media item", id)
	}
	return m, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var createdAt, lastModified int64
	if err := row.Scan(&s.ID, &s.Name, &createdAt, &lastModified, &s.ItemCount); err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, createdAt)
	s.LastModified = time.Unix(0, lastModified)
	return &s, nil
}

func scanMediaItem(row scanner) (*MediaItem, error) {
	var m MediaItem
	var mediaType string
	var mimeType sql.NullString
	var createdAt int64
	var trimNeeded int
	var duration, trimEnd, cropX, cropY, cropW, cropH sql.NullFloat64

	err := row.Scan(&m.ID, &m.SessionID, &mediaType, &mimeType, &m.Payload, &createdAt, &duration,
		&trimNeeded, &trimEnd, &cropX, &cropY, &cropW, &cropH, &m.Order)
	if err != nil {
		return nil, err
	}

	m.Type = MediaType(mediaType)
	m.MimeType = mimeType.String
	m.CreatedAt = time.Unix(0, createdAt)
	m.TrimNeeded = trimNeeded == 1
	m.Duration = floatPtr(duration)
	m.TrimEndTime = floatPtr(trimEnd)
	if cropX.Valid && cropY.Valid && cropW.Valid && cropH.Valid {
		m.Crop = &Crop{X: cropX.Float64, Y: cropY.Float64, Width: cropW.Float64, Height: cropH.Float64}
	}
	return &m, nil
}

func cropColumns(c *Crop) (x, y, w, h sql.NullFloat64) {
	if c == nil {
		return
	}
	return sql.NullFloat64{Float64: c.X, Valid: true},
		sql.NullFloat64{Float64: c.Y, Valid: true},
		sql.NullFloat64{Float64: c.Width, Valid: true},
		sql.NullFloat64{Float64: c.Height, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
