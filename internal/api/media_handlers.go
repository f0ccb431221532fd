package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/logging"
	"github.com/heimdex/clipreel/internal/playback"
	"github.com/heimdex/clipreel/internal/review"
	"github.com/heimdex/clipreel/internal/thumbnail"
	"github.com/heimdex/clipreel/internal/timeline"
)

// uploadMediaHandler is the capture collaborator's entry point: the body is
// the finished recording or photo and the query carries its metadata.
func uploadMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseUploadParams(r)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		body := io.Reader(r.Body)
		if cfg.MaxUploadBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, "payload too large", "PAYLOAD_TOO_LARGE")
				return
			}
			WriteError(w, http.StatusBadRequest, "failed to read payload", "BAD_REQUEST")
			return
		}

		f, err := cfg.Workflow.Finish(r.Context(), review.Recording{
			SessionID: chi.URLParam(r, "id"),
			Type:      catalog.MediaType(params.Type),
			MimeType:  mimeOrDefault(params.MimeType, catalog.MediaType(params.Type)),
			Payload:   payload,
			Duration:  params.Duration,
			Flagged:   params.Flagged,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		resp := UploadResponse{State: f.State(), MediaID: f.MediaID(), Media: f.Item()}
		if f.State() == review.StatePromptPending {
			// Nothing is stored yet, so an unknown session would only surface
			// when the prompt is answered.
			if _, err := cfg.CatalogService.GetSession(r.Context(), f.SessionID()); err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			cfg.Prompts.Add(f)
			resp.PromptID = f.MediaID()
			WriteJSON(w, http.StatusAccepted, resp)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func parseUploadParams(r *http.Request) (UploadParams, error) {
	q := r.URL.Query()
	params := UploadParams{
		Type:     q.Get("type"),
		MimeType: q.Get("mime"),
	}
	if params.MimeType == "" {
		params.MimeType = r.Header.Get("Content-Type")
	}

	if v := q.Get("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, fmt.Errorf("%w: duration must be a number of seconds", catalog.ErrValidation)
		}
		params.Duration = &d
	}
	if v := q.Get("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			return params, fmt.Errorf("%w: flagged must be true or false", catalog.ErrValidation)
		}
		params.Flagged = flagged
	}

	return params, validateStruct(params)
}

func getMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := cfg.CatalogService.GetMediaItem(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func editMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EditMediaRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		item, err := cfg.CatalogService.EditMedia(r.Context(), chi.URLParam(r, "id"), req.toEdit())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func payloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		item, err := cfg.CatalogService.GetMediaItem(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		p := playback.Payload{ID: item.ID, ContentType: item.MimeType, Data: item.Payload}
		if err := playback.ServePayload(w, r, p); err != nil {
			logging.WithMediaID(cfg.Logger, id).Warn("payload write interrupted", "error", err)
		}
	}
}

func thumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := cfg.CatalogService.GetMediaItem(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		data, err := cfg.Thumbnails.Render(item)
		switch {
		case errors.Is(err, thumbnail.ErrUnsupported):
			WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		case errors.Is(err, thumbnail.ErrTooLarge):
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "IMAGE_TOO_LARGE")
			return
		case err != nil:
			logging.WithMediaID(cfg.Logger, item.ID).Warn("thumbnail render failed", "error", err)
			WriteError(w, http.StatusUnprocessableEntity, "photo could not be decoded", "UNDECODABLE_MEDIA")
			return
		}

		w.Header().Set("Content-Type", thumbnail.MIMEType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if _, err := cfg.CatalogService.GetSession(r.Context(), sessionID); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		items, err := cfg.CatalogService.GetMediaForSession(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, TimelineResponse{
			SessionID: sessionID,
			Plan:      timeline.BuildPlan(timeline.ClipsFromMedia(items)),
		})
	}
}

func mimeOrDefault(mimeType string, t catalog.MediaType) string {
	if strings.TrimSpace(mimeType) != "" {
		return mimeType
	}
	if t == catalog.MediaTypePhoto {
		return "image/jpeg"
	}
	return "video/mp4"
}
