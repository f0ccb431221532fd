package api

import (
	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/review"
	"github.com/heimdex/clipreel/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type CreateSessionRequest struct {
	// Empty names get a generated one.
	Name string `json:"name" validate:"max=200"`
}

type RenameSessionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type SessionsResponse struct {
	Sessions []*catalog.Session `json:"sessions"`
}

type MediaListResponse struct {
	Items []*catalog.MediaItem `json:"items"`
}

type ReorderRequest struct {
	IDs []string `json:"ids" validate:"dive,required"`
}

// UploadParams arrive in the query string; the request body is the payload.
type UploadParams struct {
	Type     string   `validate:"required,oneof=photo video"`
	MimeType string   `validate:"max=100"`
	Duration *float64 `validate:"omitempty,gte=0"`
	Flagged  bool
}

type UploadResponse struct {
	State   review.State       `json:"state"`
	MediaID string             `json:"media_id"`
	Media   *catalog.MediaItem `json:"media,omitempty"`
	// PromptID is set while the flag prompt waits for an answer.
	PromptID string `json:"prompt_id,omitempty"`
}

type CropRequest struct {
	X      float64 `json:"x" validate:"gte=0,lte=1"`
	Y      float64 `json:"y" validate:"gte=0,lte=1"`
	Width  float64 `json:"width" validate:"gt=0,lte=1"`
	Height float64 `json:"height" validate:"gt=0,lte=1"`
}

type EditMediaRequest struct {
	Duration    *float64     `json:"duration" validate:"omitempty,gte=0"`
	TrimEndTime *float64     `json:"trim_end_time" validate:"omitempty,gte=0"`
	ClearTrim   bool         `json:"clear_trim" validate:"excluded_with=TrimEndTime"`
	Crop        *CropRequest `json:"crop"`
	ClearCrop   bool         `json:"clear_crop" validate:"excluded_with=Crop"`
	TrimNeeded  *bool        `json:"trim_needed"`
}

func (r EditMediaRequest) toEdit() catalog.MediaEdit {
	edit := catalog.MediaEdit{
		Duration:    r.Duration,
		TrimEndTime: r.TrimEndTime,
		ClearTrim:   r.ClearTrim,
		ClearCrop:   r.ClearCrop,
		TrimNeeded:  r.TrimNeeded,
	}
	if r.Crop != nil {
		edit.Crop = &catalog.Crop{X: r.Crop.X, Y: r.Crop.Y, Width: r.Crop.Width, Height: r.Crop.Height}
	}
	return edit
}

type TimelineResponse struct {
	SessionID string        `json:"session_id"`
	Plan      timeline.Plan `json:"plan"`
}

type ExportRequest struct {
	Title     string  `json:"title" validate:"max=120"`
	FrameRate float64 `json:"frame_rate" validate:"omitempty,gt=0,lte=120"`
	OutputDir string  `json:"output_dir" validate:"required"`
}

type FlagPromptPreference struct {
	Suppress bool `json:"suppress"`
}

type JustFlagRequest struct {
	DontAskAgain bool `json:"dont_ask_again"`
}

type PromptResolution struct {
	State review.State       `json:"state"`
	Media *catalog.MediaItem `json:"media"`
	// EditorMediaID names the item the UI should open in the trim/crop editor.
	EditorMediaID string `json:"editor_media_id,omitempty"`
}
