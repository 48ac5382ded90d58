// Package httpapi exposes the dictation manager over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/dictation"
	"github.com/loqalabs/loqa-dictation/internal/library"
	"github.com/loqalabs/loqa-dictation/internal/practice"
	"github.com/loqalabs/loqa-dictation/internal/presence"
	"github.com/loqalabs/loqa-dictation/internal/protocol"
	"github.com/loqalabs/loqa-dictation/internal/textnorm"
	"github.com/loqalabs/loqa-dictation/internal/tts"
	"github.com/loqalabs/loqa-dictation/internal/vision"
)

// Options configures the handler. Ready, Metrics and Nodes are optional.
type Options struct {
	Config  config.HTTPConfig
	Manager *dictation.Manager
	Ready   func() bool
	Metrics http.Handler
	Nodes   func() []presence.Node
	Logger  *slog.Logger
}

type server struct {
	cfg     config.HTTPConfig
	manager *dictation.Manager
	ready   func() bool
	nodes   func() []presence.Node
	logger  *slog.Logger
}

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	s := &server{
		cfg:     opts.Config,
		manager: opts.Manager,
		ready:   opts.Ready,
		nodes:   opts.Nodes,
		logger:  opts.Logger.With(slog.String("component", "http")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := opts.Config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.Config.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.Config.RateLimitPerMinute, time.Minute))
		}
		if opts.Config.RequestTimeoutMS > 0 {
			r.Use(middleware.Timeout(time.Duration(opts.Config.RequestTimeoutMS) * time.Millisecond))
		}
		r.Post("/extract", s.handleExtract)
		r.Get("/voices", s.handleVoices)
		r.Post("/preview", s.handlePreview)
		r.Post("/tracks", s.handleGenerate)
		r.Get("/tracks/{job}/{part}", s.handleTrack)
		r.Post("/tracks/{job}/save", s.handleSave)
		r.Get("/jobs/{job}/events", s.handleEvents)
		r.Get("/recordings", s.handleRecordings)
		r.Get("/recordings/{file}", s.handleRecording)
		r.Get("/nodes", s.handleNodes)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing image field: %w", err))
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(image)
	}

	jobID, ext, err := s.manager.Extract(r.Context(), image, mimeType)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		JobID string `json:"job_id"`
		vision.Extraction
	}{JobID: jobID, Extraction: ext})
}

func (s *server) handleVoices(w http.ResponseWriter, r *http.Request) {
	language := textnorm.Standard().Resolve(r.URL.Query().Get("language"))
	writeJSON(w, http.StatusOK, map[string]any{
		"language": language,
		"default":  tts.DefaultVoice(language),
		"voices":   tts.Voices(language),
	})
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req protocol.PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	data, contentType, err := s.manager.Preview(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	reply, err := s.manager.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	jobID, part := chi.URLParam(r, "job"), chi.URLParam(r, "part")
	track, ok := s.manager.Track(jobID, part)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s/%s", dictation.ErrJobNotFound, jobID, part))
		return
	}
	w.Header().Set("Content-Type", track.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", library.Filename(jobID, part, track.Extension)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(track.Data)
}

func (s *server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := s.manager.Save(r.Context(), chi.URLParam(r, "job"), req.Name)
	if err != nil && len(saved) == 0 {
		s.writeError(w, statusFor(err), err)
		return
	}
	files := make(map[string]string, len(saved))
	for part, path := range saved {
		files[part] = filepath.Base(path)
	}
	body := map[string]any{"saved": files}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.manager.History(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	type eventView struct {
		Type      string          `json:"type"`
		Part      string          `json:"part,omitempty"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Type: e.Type, Part: e.Part, Payload: e.Payload, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleRecordings(w http.ResponseWriter, _ *http.Request) {
	recordings, err := s.manager.Library().List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recordings == nil {
		recordings = []library.Recording{}
	}
	writeJSON(w, http.StatusOK, recordings)
}

func (s *server) handleRecording(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	f, err := s.manager.Library().Open(name)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := []presence.Node{}
	if s.nodes != nil {
		if found := s.nodes(); found != nil {
			nodes = found
		}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, practice.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, dictation.ErrJobNotFound), errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, practice.ErrProviderFailure), errors.Is(err, vision.ErrExtraction):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
