package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipreel/internal/catalog"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", listSessionsHandler(cfg))
			r.Post("/", createSessionHandler(cfg))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getSessionHandler(cfg))
				r.Patch("/", renameSessionHandler(cfg))
				r.Delete("/", deleteSessionHandler(cfg))
				r.Get("/media", listMediaHandler(cfg))
				r.Post("/media", uploadMediaHandler(cfg))
				r.Put("/order", reorderHandler(cfg))
				r.Get("/timeline", timelineHandler(cfg))
				r.Post("/export", exportHandler(cfg))
			})
		})

		r.Route("/media/{id}", func(r chi.Router) {
			r.Get("/", getMediaHandler(cfg))
			r.Patch("/", editMediaHandler(cfg))
			r.Get("/thumbnail", thumbnailHandler(cfg))

			r.Group(func(r chi.Router) {
				r.Use(LoopbackGuard())
				r.Get("/payload", payloadHandler(cfg))
				r.Head("/payload", payloadHandler(cfg))
			})
		})

		r.Get("/preferences/flag-prompt", getFlagPromptHandler(cfg))
		r.Put("/preferences/flag-prompt", setFlagPromptHandler(cfg))

		r.Post("/prompts/{id}/fix-now", fixNowHandler(cfg))
		r.Post("/prompts/{id}/just-flag", justFlagHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := cfg.CatalogService.ListSessions(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if sessions == nil {
			sessions = []*catalog.Session{}
		}
		WriteJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
	}
}

func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		session, err := cfg.CatalogService.CreateSession(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, session)
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := cfg.CatalogService.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, session)
	}
}

func renameSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		session, err := cfg.CatalogService.RenameSession(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, session)
	}
}

func deleteSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.CatalogService.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := cfg.CatalogService.GetMediaForSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if items == nil {
			items = []*catalog.MediaItem{}
		}
		WriteJSON(w, http.StatusOK, MediaListResponse{Items: items})
	}
}

func reorderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReorderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		sessionID := chi.URLParam(r, "id")
		if err := cfg.CatalogService.ReorderMediaItems(r.Context(), sessionID, req.IDs); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		items, err := cfg.CatalogService.GetMediaForSession(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if items == nil {
			items = []*catalog.MediaItem{}
		}
		WriteJSON(w, http.StatusOK, MediaListResponse{Items: items})
	}
}
