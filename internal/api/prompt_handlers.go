package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipreel/internal/review"
)

// editorRequest records which item the UI should open in the editor. The
// navigation itself happens client-side once the response arrives.
type editorRequest struct {
	mediaID string
}

func (e *editorRequest) OpenEditor(_ context.Context, mediaID string) error {
	e.mediaID = mediaID
	return nil
}

func getFlagPromptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suppress, err := cfg.CatalogService.SuppressFlagPrompt(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, FlagPromptPreference{Suppress: suppress})
	}
}

func setFlagPromptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FlagPromptPreference
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := cfg.CatalogService.SetSuppressFlagPrompt(r.Context(), req.Suppress); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, req)
	}
}

func fixNowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := pendingPrompt(w, r, cfg)
		if !ok {
			return
		}

		nav := &editorRequest{}
		item, err := f.FixNow(r.Context(), nav)
		if err != nil && item == nil {
			writePromptError(w, cfg, err)
			return
		}
		cfg.Prompts.Remove(f.MediaID())

		WriteJSON(w, http.StatusOK, PromptResolution{
			State:         f.State(),
			Media:         item,
			EditorMediaID: nav.mediaID,
		})
	}
}

func justFlagHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JustFlagRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		f, ok := pendingPrompt(w, r, cfg)
		if !ok {
			return
		}

		item, err := f.JustFlag(r.Context(), req.DontAskAgain)
		if err != nil && item == nil {
			writePromptError(w, cfg, err)
			return
		}
		cfg.Prompts.Remove(f.MediaID())
		if err != nil {
			// The clip is stored; only the preference write failed.
			cfg.Logger.Warn("flag prompt preference not saved", "media_id", f.MediaID(), "error", err)
		}

		WriteJSON(w, http.StatusOK, PromptResolution{State: f.State(), Media: item})
	}
}

func pendingPrompt(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*review.Finalization, bool) {
	id := chi.URLParam(r, "id")
	f, found := cfg.Prompts.Get(id)
	if !found {
		WriteError(w, http.StatusNotFound, "prompt not found or already answered", "NOT_FOUND")
		return nil, false
	}
	return f, true
}

func writePromptError(w http.ResponseWriter, cfg ServerConfig, err error) {
	if errors.Is(err, review.ErrNotPending) {
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
		return
	}
	writeServiceError(w, cfg.Logger, err)
}
