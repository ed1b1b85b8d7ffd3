package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
	red "research-assistant/internal/infra/redis"
	"research-assistant/internal/usecase"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	MaxUploadBytes  int64
	SubmitPerMinute int           // 0 disables limiting
	ReadTimeout     time.Duration // bounds the read-only routes
}

// Server exposes the job API.
type Server struct {
	jobs    usecase.JobUseCase
	limiter RateLimiter
	opts    Options
	log     *zerolog.Logger
}

func NewServer(jobs usecase.JobUseCase, limiter RateLimiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{jobs: jobs, limiter: limiter, opts: opts, log: &l}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID(), RequestLog(s.log), Recover(s.log))

	r.Post("/jobs", s.handleSubmit)
	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.ReadTimeout))
		r.Get("/jobs/{jobID}", s.handleStatus)
		r.Get("/jobs/{jobID}/files", s.handleFiles)
		r.Get("/jobs/{jobID}/download/{name}", s.handleDownload)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
	ResultURL string `json:"result_url"`
}

type statusResponse struct {
	JobID        string            `json:"job_id"`
	Status       model.JobState    `json:"status"`
	Error        string            `json:"error,omitempty"`
	Files        []string          `json:"files,omitempty"`
	DownloadURLs map[string]string `json:"download_urls,omitempty"`
}

type filesResponse struct {
	JobID        string            `json:"job_id"`
	Files        []string          `json:"files"`
	DownloadURLs map[string]string `json:"download_urls"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	if !s.allowSubmit(r) {
		writeError(w, http.StatusTooManyRequests, "too many submissions, retry later")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	input := model.JobInput{
		Prompt:      r.FormValue("prompt"),
		ContextText: r.FormValue("context_text"),
	}
	if strings.TrimSpace(input.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	img, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}
	input.Image = img

	id, err := s.jobs.Submit(ctx, input)
	if err != nil {
		if id == "" {
			s.writeDomainError(w, r, err)
			return
		}
		// immediate mode: the job exists and is recorded as failed
		l.Error().Err(err).Str("job_id", id).Msg("job failed during submit")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": domain.FormatError(err),
			"job_id": id,
		})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		JobID:     id,
		StatusURL: "/jobs/" + id,
		ResultURL: "/jobs/" + id + "/files",
	})
}

// readImage returns nil when no file (or an empty one) was uploaded.
func readImage(r *http.Request) (*model.Image, error) {
	f, hdr, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	if hdr.Filename == "" {
		return nil, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	mimeType := hdr.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/png"
	}
	return &model.Image{Data: data, MIMEType: mimeType}, nil
}

func (s *Server) allowSubmit(r *http.Request) bool {
	if s.limiter == nil || s.opts.SubmitPerMinute <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), red.SubmitKey(clientIP(r)), s.opts.SubmitPerMinute, time.Minute)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		return true
	}
	return ok
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	st, err := s.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := statusResponse{JobID: st.JobID, Status: st.State, Error: st.Error}
	if st.State == model.JobStateFinished {
		resp.Files = st.Artifacts
		if resp.Files == nil {
			resp.Files = []string{}
		}
		resp.DownloadURLs = downloadURLs(jobID, st.Artifacts)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	files, err := s.jobs.ListArtifacts(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, filesResponse{JobID: jobID, Files: files, DownloadURLs: downloadURLs(jobID, files)})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	name := chi.URLParam(r, "name")
	data, err := s.jobs.GetArtifact(r.Context(), jobID, name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mediaType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func downloadURLs(jobID string, files []string) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f] = "/jobs/" + jobID + "/download/" + f
	}
	return out
}

var mediaTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".pdf":  "application/pdf",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
}

func mediaType(name string) string {
	if t, ok := mediaTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
