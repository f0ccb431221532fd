package catalog

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// MediaType is the variant of a captured media item.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

func (t MediaType) Valid() bool {
	return t == MediaTypePhoto || t == MediaTypeVideo
}

const (
	PrefSuppressFlagPrompt = "suppress_flag_prompt"
	PrefAuthToken          = "auth_token"
)

// Session is a named container owning an ordered set of media items.
// ItemCount always equals the number of media items the session owns.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	ItemCount    int       `json:"item_count"`
}

// Crop is a normalized rectangle inside the unit square.
type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks x+width <= 1, y+height <= 1 and a positive area.
func (c Crop) Validate() error {
	for _, v := range []float64{c.X, c.Y, c.Width, c.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: crop components must be finite", ErrValidation)
		}
	}
	if c.X < 0 || c.Y < 0 {
		return fmt.Errorf("%w: crop origin must be non-negative", ErrValidation)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: crop width and height must be positive", ErrValidation)
	}
	if c.X+c.Width > 1 || c.Y+c.Height > 1 {
		return fmt.Errorf("%w: crop exceeds the frame", ErrValidation)
	}
	return nil
}

// MediaItem is one captured photo or video clip. Payload is owned by the
// store and never rewritten; trim and crop edits live beside it.
type MediaItem struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Type        MediaType `json:"type"`
	MimeType    string    `json:"mime_type,omitempty"`
	Payload     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	Duration    *float64  `json:"duration,omitempty"`
	TrimNeeded  bool      `json:"trim_needed"`
	TrimEndTime *float64  `json:"trim_end_time,omitempty"`
	Crop        *Crop     `json:"crop,omitempty"`
	Order       int       `json:"order"`
}

// Validate checks the edit metadata of an item.
func (m *MediaItem) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown media type %q", ErrValidation, m.Type)
	}
	if err := validSeconds("duration", m.Duration); err != nil {
		return err
	}
	if err := validSeconds("trim end time", m.TrimEndTime); err != nil {
		return err
	}
	if m.Crop != nil {
		if err := m.Crop.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validSeconds(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return fmt.Errorf("%w: %s must be a finite, non-negative number of seconds", ErrValidation, field)
	}
	return nil
}

// Seconds returns a pointer to v, for optional duration and trim fields.
func Seconds(v float64) *float64 {
	return &v
}

func NewID() string {
	return uuid.NewString()
}

// nextModified returns the successor of prev for a write happening at now.
// The result is strictly after prev even when the clock has not advanced.
func nextModified(prev, now time.Time) time.Time {
	if now.After(prev) {
		return stamp(now)
	}
	return stamp(prev.Add(time.Nanosecond))
}

// stamp drops the monotonic reading and location so values compare equal to
// what is read back from storage.
func stamp(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano())
}
