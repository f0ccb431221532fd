package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/export"
	"github.com/heimdex/clipreel/internal/logging"
	"github.com/heimdex/clipreel/internal/timeline"
)

const defaultFrameRate = 30.0

// exportHandler writes the session's merged timeline as a CMX3600 EDL into a
// directory on this machine.
func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		sessionID := chi.URLParam(r, "id")
		logger := logging.WithSessionID(cfg.Logger, sessionID)
		session, err := cfg.CatalogService.GetSession(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		items, err := cfg.CatalogService.GetMediaForSession(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		resolved, unresolved := export.ResolveClips(timeline.ClipsFromMedia(items))
		if len(resolved) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
			return
		}

		title := req.Title
		if title == "" {
			title = session.Name
		}
		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = defaultFrameRate
		}

		path, err := export.WriteEDL(export.Request{
			Title:     title,
			FrameRate: frameRate,
			OutputDir: req.OutputDir,
		}, resolved)
		if err != nil {
			if errors.Is(err, catalog.ErrValidation) {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			logger.Error("export failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		logger.Info("session exported",
			"path", logging.SanitizePath(path),
			"clips", len(resolved),
			"unresolved", len(unresolved),
		)
		WriteJSON(w, http.StatusOK, export.Result{
			Status:          "ok",
			Format:          export.FormatEDL,
			OutputPath:      path,
			ClipCount:       len(resolved),
			UnresolvedClips: unresolved,
		})
	}
}
