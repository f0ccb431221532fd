package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/db"
	"github.com/heimdex/clipreel/internal/metrics"
	"github.com/heimdex/clipreel/internal/review"
	"github.com/heimdex/clipreel/internal/thumbnail"
)

const testToken = "test-token"

type testEnv struct {
	router  http.Handler
	svc     *catalog.Service
	prompts *review.PendingPrompts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo := catalog.NewRepository(database)
	require.NoError(t, repo.SetPreference(context.Background(), catalog.PrefAuthToken, testToken))

	svc := catalog.NewService(repo, logger)
	prompts := review.NewPendingPrompts(time.Hour, logger)
	t.Cleanup(prompts.Drain)

	router := NewRouter(ServerConfig{
		Version:        "test",
		CatalogService: svc,
		Tokens:         repo,
		Workflow:       review.NewWorkflow(svc, svc, logger),
		Prompts:        prompts,
		Thumbnails:     thumbnail.NewRenderer(64, time.Minute),
		Metrics:        metrics.Handler(metrics.NewRegistry()),
		MaxUploadBytes: 1 << 16,
		Logger:         logger,
		StartTime:      time.Now(),
	})
	return &testEnv{router: router, svc: svc, prompts: prompts}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewReader(data), "Content-Type", "application/json")
}

func (e *testEnv) createSession(t *testing.T, name string) *catalog.Session {
	t.Helper()
	rr := e.doJSON(t, http.MethodPost, "/sessions", CreateSessionRequest{Name: name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s catalog.Session
	decodeInto(t, rr, &s)
	return &s
}

func (e *testEnv) upload(t *testing.T, sessionID, query string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/sessions/"+sessionID+"/media?"+query, bytes.NewReader(payload))
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSONBody(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestSessions_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetrics_Mounted(t *testing.T) {
	env := newTestEnv(t)
	env.createSession(t, "Warmup")

	rr := env.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "clipreel_")
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Beach")

	rr := env.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list SessionsResponse
	decodeInto(t, rr, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "Beach", list.Sessions[0].Name)

	rr = env.doJSON(t, http.MethodPatch, "/sessions/"+s.ID, RenameSessionRequest{Name: "Dunes"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var renamed catalog.Session
	decodeInto(t, rr, &renamed)
	assert.Equal(t, "Dunes", renamed.Name)

	rr = env.do(t, http.MethodDelete, "/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decodeJSONBody(t, rr)["code"])
}

func TestCreateSession_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, http.MethodPost, "/sessions", CreateSessionRequest{Name: strings.Repeat("x", 201)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/sessions", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeJSONBody(t, rr)["code"])
}

func TestUpload_Unflagged(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	rr := env.upload(t, s.ID, "type=video&duration=4.5&mime=video/webm", []byte("frames"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp UploadResponse
	decodeInto(t, rr, &resp)
	assert.Equal(t, review.StateSaved, resp.State)
	require.NotNil(t, resp.Media)
	assert.Equal(t, resp.MediaID, resp.Media.ID)
	assert.False(t, resp.Media.TrimNeeded)
	assert.Empty(t, resp.PromptID)

	got, err := env.svc.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ItemCount)
}

func TestUpload_Errors(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	cases := []struct {
		name    string
		session string
		query   string
		want    int
	}{
		{"unknown type", s.ID, "type=audio", http.StatusBadRequest},
		{"missing type", s.ID, "", http.StatusBadRequest},
		{"bad duration", s.ID, "type=video&duration=long", http.StatusBadRequest},
		{"negative duration", s.ID, "type=video&duration=-1", http.StatusBadRequest},
		{"flagged photo", s.ID, "type=photo&flagged=true", http.StatusBadRequest},
		{"missing session", "nope", "type=video", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.upload(t, tc.session, tc.query, []byte("data"))
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	rr := env.upload(t, s.ID, "type=video", make([]byte, 1<<16+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestFlagPrompt_JustFlagDontAskAgain(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	rr := env.upload(t, s.ID, "type=video&duration=3&flagged=true", []byte("frames"))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var pending UploadResponse
	decodeInto(t, rr, &pending)
	assert.Equal(t, review.StatePromptPending, pending.State)
	assert.Nil(t, pending.Media)
	require.NotEmpty(t, pending.PromptID)

	// Nothing is stored while the prompt is open.
	items, err := env.svc.GetMediaForSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	rr = env.doJSON(t, http.MethodPost, "/prompts/"+pending.PromptID+"/just-flag", JustFlagRequest{DontAskAgain: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res PromptResolution
	decodeInto(t, rr, &res)
	assert.Equal(t, review.StateJustFlagged, res.State)
	require.NotNil(t, res.Media)
	assert.Equal(t, pending.PromptID, res.Media.ID)
	assert.True(t, res.Media.TrimNeeded)
	assert.Equal(t, 0, env.prompts.Len())

	rr = env.do(t, http.MethodGet, "/preferences/flag-prompt", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSONBody(t, rr)["suppress"])

	rr = env.doJSON(t, http.MethodPost, "/prompts/"+pending.PromptID+"/just-flag", JustFlagRequest{})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// With the prompt suppressed the next flagged clip is stored immediately.
	rr = env.upload(t, s.ID, "type=video&duration=2&flagged=true", []byte("frames"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var auto UploadResponse
	decodeInto(t, rr, &auto)
	assert.Equal(t, review.StateFlaggedAuto, auto.State)
	assert.True(t, auto.Media.TrimNeeded)
}

func TestFlagPrompt_FixNow(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	rr := env.upload(t, s.ID, "type=video&duration=3&flagged=true", []byte("frames"))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var pending UploadResponse
	decodeInto(t, rr, &pending)

	rr = env.do(t, http.MethodPost, "/prompts/"+pending.PromptID+"/fix-now", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res PromptResolution
	decodeInto(t, rr, &res)
	assert.Equal(t, review.StateFixNow, res.State)
	assert.Equal(t, pending.PromptID, res.EditorMediaID)
	assert.True(t, res.Media.TrimNeeded)

	rr = env.do(t, http.MethodGet, "/preferences/flag-prompt", nil)
	assert.Equal(t, false, decodeJSONBody(t, rr)["suppress"])
}

func TestFlagPrompt_Preference(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, http.MethodPut, "/preferences/flag-prompt", FlagPromptPreference{Suppress: true})
	require.Equal(t, http.StatusOK, rr.Code)

	suppress, err := env.svc.SuppressFlagPrompt(context.Background())
	require.NoError(t, err)
	assert.True(t, suppress)
}

func TestPrompt_Unknown(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/prompts/missing/fix-now", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func uploadVideos(t *testing.T, env *testEnv, sessionID string, durations ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(durations))
	for _, d := range durations {
		rr := env.upload(t, sessionID, "type=video&duration="+d, []byte("clip-"+d))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var resp UploadResponse
		decodeInto(t, rr, &resp)
		ids = append(ids, resp.MediaID)
	}
	return ids
}

func TestReorder(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")
	ids := uploadVideos(t, env, s.ID, "1", "2", "3")

	reversed := []string{ids[2], ids[1], ids[0]}
	rr := env.doJSON(t, http.MethodPut, "/sessions/"+s.ID+"/order", ReorderRequest{IDs: reversed})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var list MediaListResponse
	decodeInto(t, rr, &list)
	require.Len(t, list.Items, 3)
	for i, item := range list.Items {
		assert.Equal(t, reversed[i], item.ID)
	}

	rr = env.doJSON(t, http.MethodPut, "/sessions/"+s.ID+"/order", ReorderRequest{IDs: ids[:2]})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.doJSON(t, http.MethodPut, "/sessions/missing/order", ReorderRequest{IDs: ids})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEditMediaAndTimeline(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")
	ids := uploadVideos(t, env, s.ID, "5", "4")

	rr := env.doJSON(t, http.MethodPatch, "/media/"+ids[0], map[string]any{"trim_end_time": 2.5})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var item catalog.MediaItem
	decodeInto(t, rr, &item)
	require.NotNil(t, item.TrimEndTime)
	assert.Equal(t, 2.5, *item.TrimEndTime)

	rr = env.doJSON(t, http.MethodPatch, "/media/"+ids[0], map[string]any{"trim_end_time": 1, "clear_trim": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.doJSON(t, http.MethodPatch, "/media/"+ids[1], map[string]any{
		"crop": map[string]float64{"x": 0.5, "y": 0, "width": 0.75, "height": 1},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "crop wider than the frame")

	rr = env.do(t, http.MethodGet, "/sessions/"+s.ID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tl TimelineResponse
	decodeInto(t, rr, &tl)
	require.Len(t, tl.Plan.Segments, 2)
	assert.Equal(t, 6.5, tl.Plan.Total)
	assert.Equal(t, 2.5, tl.Plan.Segments[1].Offset)

	rr = env.do(t, http.MethodGet, "/sessions/missing/timeline", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPayload(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	rr := env.upload(t, s.ID, "type=video&mime=video/mp4", []byte("0123456789"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp UploadResponse
	decodeInto(t, rr, &resp)

	rr = env.do(t, http.MethodGet, "/media/"+resp.MediaID+"/payload", nil, "Range", "bytes=2-5")
	require.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "2345", rr.Body.String())
	assert.Equal(t, "bytes 2-5/10", rr.Header().Get("Content-Range"))
	assert.Equal(t, "video/mp4", rr.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/media/"+resp.MediaID+"/payload", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "10.0.0.8:40000"
	remote := httptest.NewRecorder()
	env.router.ServeHTTP(remote, req)
	assert.Equal(t, http.StatusForbidden, remote.Code)
}

func TestThumbnail(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "Trip")

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	rr := env.upload(t, s.ID, "type=photo&mime=image/png", buf.Bytes())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var photo UploadResponse
	decodeInto(t, rr, &photo)

	rr = env.do(t, http.MethodGet, "/media/"+photo.MediaID+"/thumbnail", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, thumbnail.MIMEType, rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Body.Bytes())

	ids := uploadVideos(t, env, s.ID, "1")
	rr = env.do(t, http.MethodGet, "/media/"+ids[0]+"/thumbnail", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.upload(t, s.ID, "type=photo&mime=image/png", []byte("not an image"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var broken UploadResponse
	decodeInto(t, rr, &broken)
	rr = env.do(t, http.MethodGet, "/media/"+broken.MediaID+"/thumbnail", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
