// Package server exposes the search engine over HTTP: an HTML results
// page, a JSON search API, image-by-id and neighbor lookups, image file
// serving, and object name enumeration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/errors"
	"github.com/aicvlab/frameseek/internal/search"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string
	// DataRoot bounds image serving; get_img refuses paths outside it.
	DataRoot string
	// PlaceholderImage is served when a requested image is missing.
	PlaceholderImage string
	// RequestTimeout bounds a single request (default: 30s).
	RequestTimeout time.Duration
}

// Server routes requests to the search engine.
type Server struct {
	engine *search.Engine
	config Config
	logger *slog.Logger
	http   *http.Server
}

// New builds the server and its routes.
func New(engine *search.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, config: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /keyframe/", s.handleSearchPage)
	mux.HandleFunc("POST /keyframe/search", s.handleSearchJSON)
	mux.HandleFunc("GET /keyframe/imgsearch", s.handleImageSearch)
	mux.HandleFunc("GET /keyframe/neighbors", s.handleNeighbors)
	mux.HandleFunc("GET /keyframe/get_img", s.handleGetImage)
	mux.HandleFunc("GET /keyframe/objects", s.handleObjects)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      http.TimeoutHandler(mux, cfg.RequestTimeout, "request timed out"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("addr", s.config.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleSearchPage serves the HTML results page. With no retrieval input
// at all it lists frames in archive order (browse mode).
func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/keyframe/" {
		http.NotFound(w, r)
		return
	}

	req, err := requestFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req.Normalize()

	var page *search.Page
	if req.Query == "" && req.ASR == "" && req.OCR == "" && len(req.ObjFilters) == 0 {
		page, err = s.engine.Browse(r.Context(), req.GroupNums, req.VideoNums, req.Page, req.Size)
	} else {
		page, err = s.engine.Search(r.Context(), *req)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.renderResultsPage(w, r, req, page)
}

// handleSearchJSON is the unified search API.
func (s *Server) handleSearchJSON(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.engine.Search(r.Context(), *req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	imgid, err := queryUint64(r, "imgid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page := queryIntDefault(r, "page", 1)
	size := queryIntDefault(r, "size", 50)

	result, err := s.engine.ImageSearch(r.Context(), imgid, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	imgid, err := queryUint64(r, "imgid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	k := queryIntDefault(r, "k", 5)

	results, err := s.engine.Neighbors(r.Context(), imgid, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleGetImage serves a keyframe JPEG, substituting the placeholder
// when the file is missing. Paths outside the data root are rejected.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	fpath := r.URL.Query().Get("fpath")
	if fpath == "" {
		s.writeError(w, r, errors.BadRequest("fpath is required", nil))
		return
	}

	abs, err := filepath.Abs(fpath)
	if err != nil {
		s.writeError(w, r, errors.BadRequest("invalid fpath", err))
		return
	}
	root, err := filepath.Abs(s.config.DataRoot)
	if err == nil && root != "" {
		if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			s.writeError(w, r, errors.BadRequest("fpath outside data root", nil))
			return
		}
	}

	if _, statErr := os.Stat(abs); statErr != nil {
		if s.config.PlaceholderImage != "" {
			http.ServeFile(w, r, s.config.PlaceholderImage)
			return
		}
		s.writeError(w, r, errors.NotFound("image not found", statErr))
		return
	}
	http.ServeFile(w, r, abs)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.ObjectNames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"objects": names})
}

// requestFromQuery decodes a unified request from GET query parameters.
func requestFromQuery(r *http.Request) (*search.UnifiedRequest, error) {
	q := r.URL.Query()

	filters, err := archive.ParseObjectFilters(q.Get("obj_filters"))
	if err != nil {
		return nil, err
	}
	excludeIDs, err := parseUint64List(q.Get("exclude_ids"))
	if err != nil {
		return nil, errors.BadRequest("exclude_ids must be a JSON array of integers", err)
	}
	groupNums, err := parseIntList(q.Get("group_nums"))
	if err != nil {
		return nil, errors.BadRequest("group_nums must be a JSON array of integers", err)
	}
	videoNums, err := parseIntList(q.Get("video_nums"))
	if err != nil {
		return nil, errors.BadRequest("video_nums must be a JSON array of integers", err)
	}

	req := &search.UnifiedRequest{
		Query:      q.Get("query"),
		ASR:        q.Get("asr"),
		OCR:        q.Get("ocr"),
		ObjFilters: filters,
		ExcludeIDs: excludeIDs,
		GroupNums:  groupNums,
		VideoNums:  videoNums,
		Page:       queryIntDefault(r, "page", 0),
		Size:       queryIntDefault(r, "size", 0),
		Oversample: queryIntDefault(r, "oversample", 0),
	}
	return req, nil
}

// searchBody is the POST /keyframe/search request shape. ObjFilters
// accepts either a JSON array of {name,cmp,count} or a
// "name:cmp:count,..." string.
type searchBody struct {
	Query      string          `json:"query"`
	ASR        string          `json:"asr"`
	OCR        string          `json:"ocr"`
	ObjFilters json.RawMessage `json:"obj_filters"`
	ExcludeIDs []uint64        `json:"exclude_ids"`
	GroupNums  []int           `json:"group_nums"`
	VideoNums  []int           `json:"video_nums"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	Oversample int             `json:"oversample"`
	WVec       *float64        `json:"w_vec"`
	WASR       *float64        `json:"w_asr"`
	WOCR       *float64        `json:"w_ocr"`
}

func requestFromBody(r *http.Request) (*search.UnifiedRequest, error) {
	var body searchBody
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		return nil, errors.BadRequest("malformed JSON body", err)
	}

	filters, err := parseObjFiltersJSON(body.ObjFilters)
	if err != nil {
		return nil, err
	}

	return &search.UnifiedRequest{
		Query:      body.Query,
		ASR:        body.ASR,
		OCR:        body.OCR,
		ObjFilters: filters,
		ExcludeIDs: body.ExcludeIDs,
		GroupNums:  body.GroupNums,
		VideoNums:  body.VideoNums,
		Page:       body.Page,
		Size:       body.Size,
		Oversample: body.Oversample,
		WVec:       body.WVec,
		WASR:       body.WASR,
		WOCR:       body.WOCR,
	}, nil
}

// parseObjFiltersJSON normalizes the two accepted obj_filters encodings.
func parseObjFiltersJSON(raw json.RawMessage) ([]archive.ObjectFilter, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.InvalidFilter("obj_filters string is not valid JSON", err)
		}
		return archive.ParseObjectFilters(s)
	}
	return archive.ParseObjectFilters(trimmed)
}

// parseIntList accepts a JSON array or an empty value.
func parseIntList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseUint64List(raw string) ([]uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []uint64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func queryUint64(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.BadRequest(fmt.Sprintf("%s is required", name), nil)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.BadRequest(fmt.Sprintf("%s must be an unsigned integer", name), err)
	}
	return v, nil
}

func queryIntDefault(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}

	code := "ERR_500_INTERNAL"
	var serviceErr *errors.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code
	}
	s.writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", slog.String("error", err.Error()))
	}
}
