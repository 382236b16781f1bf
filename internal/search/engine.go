package search

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/embed"
	"github.com/aicvlab/frameseek/internal/errors"
	"github.com/aicvlab/frameseek/internal/store"
	"github.com/aicvlab/frameseek/internal/translate"
)

// Channel retrieval limits.
const (
	asrSegmentLimit  = 1000
	asrPerRangeLimit = 10
	ocrResultLimit   = 5000
)

// EngineConfig carries the tunables of the hybrid engine.
type EngineConfig struct {
	// Fusion weight defaults, overridable per request.
	WVec float64
	WASR float64
	WOCR float64
	// RRFConstant is the k in 1/(k+rank) (default: 60).
	RRFConstant int
	// Oversample widens the vector candidate pool (default: 10).
	Oversample int
	// FPS projects caption seconds onto keyframe numbers (default: 30).
	FPS int

	// Per-channel deadlines. A channel that misses its deadline
	// contributes nothing instead of failing the request.
	VectorTimeout time.Duration
	StoreTimeout  time.Duration
	EmbedTimeout  time.Duration
}

func (c *EngineConfig) applyDefaults() {
	if c.WVec == 0 && c.WASR == 0 && c.WOCR == 0 {
		c.WVec, c.WASR, c.WOCR = 1.0, 1.0, 0.5
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.Oversample <= 0 {
		c.Oversample = 10
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 5 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 3 * time.Second
	}
}

// Engine is the search orchestrator. Stores are shared read-only across
// requests; per-request state lives on the stack of Search.
type Engine struct {
	vectors    store.VectorIndex
	meta       store.MetadataStore
	embedder   embed.Embedder
	translator translate.Translator
	paths      *archive.PathResolver
	config     EngineConfig
	logger     *slog.Logger
}

// NewEngine wires the engine. translator may be nil for deployments that
// skip query translation; embedder may be nil only if the vector channel
// is never used.
func NewEngine(
	vectors store.VectorIndex,
	meta store.MetadataStore,
	embedder embed.Embedder,
	translator translate.Translator,
	paths *archive.PathResolver,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	cfg.applyDefaults()
	if translator == nil {
		translator = translate.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		vectors:    vectors,
		meta:       meta,
		embedder:   embedder,
		translator: translator,
		paths:      paths,
		config:     cfg,
		logger:     logger,
	}
}

// fusionChannel is one retrieval capability: it produces a ranked id
// list under its own deadline. New channels plug in here without
// touching the fan-out or fusion code.
type fusionChannel struct {
	name    string
	weight  float64
	timeout time.Duration
	run     func(ctx context.Context) ([]uint64, error)
}

// Search runs the unified hybrid query.
func (e *Engine) Search(ctx context.Context, req UnifiedRequest) (*Page, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	channels := e.buildChannels(req)

	ranked, err := e.fanOut(ctx, channels)
	if err != nil {
		return nil, err
	}

	fused := Fuse(ranked, e.config.RRFConstant)

	if len(req.ObjFilters) > 0 && len(fused) > 0 {
		fused, err = e.meta.FilterByObjects(ctx, fused, req.ObjFilters)
		if err != nil {
			return nil, err
		}
	}

	results, err := e.materialize(ctx, fused, req)
	if err != nil {
		return nil, err
	}

	return &Page{TotalPage: e.totalPages(req.Size), Results: results}, nil
}

// buildChannels assembles the active channels for the request.
func (e *Engine) buildChannels(req UnifiedRequest) []fusionChannel {
	var channels []fusionChannel

	if req.Query != "" && e.embedder != nil {
		channels = append(channels, fusionChannel{
			name:    "vector",
			weight:  weightOr(req.WVec, e.config.WVec),
			timeout: e.config.VectorTimeout + e.config.EmbedTimeout,
			run: func(ctx context.Context) ([]uint64, error) {
				return e.vectorChannel(ctx, req)
			},
		})
	}
	if req.ASR != "" {
		channels = append(channels, fusionChannel{
			name:    "asr",
			weight:  weightOr(req.WASR, e.config.WASR),
			timeout: e.config.StoreTimeout,
			run: func(ctx context.Context) ([]uint64, error) {
				return e.asrChannel(ctx, req.ASR)
			},
		})
	}
	if req.OCR != "" {
		channels = append(channels, fusionChannel{
			name:    "ocr",
			weight:  weightOr(req.WOCR, e.config.WOCR),
			timeout: e.config.StoreTimeout,
			run: func(ctx context.Context) ([]uint64, error) {
				return e.ocrChannel(ctx, req.OCR)
			},
		})
	}
	return channels
}

// fanOut runs the channels concurrently. A failed or timed-out channel
// is recovered locally and contributes an empty list; the request fails
// only when every active channel failed, or on cancellation.
func (e *Engine) fanOut(ctx context.Context, channels []fusionChannel) ([]RankedList, error) {
	if len(channels) == 0 {
		return nil, nil
	}

	ranked := make([]RankedList, len(channels))
	chanErrs := make([]error, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			chCtx, cancel := context.WithTimeout(gctx, ch.timeout)
			defer cancel()

			ids, err := ch.run(chCtx)
			if err != nil {
				// Parent cancellation aborts the request; a channel's
				// own deadline does not.
				if ctx.Err() != nil {
					return errors.FromContext(ctx)
				}
				e.logger.Warn("retrieval channel failed",
					slog.String("channel", ch.name),
					slog.String("error", err.Error()))
				chanErrs[i] = err
				return nil
			}
			ranked[i] = RankedList{Name: ch.name, Weight: ch.weight, IDs: ids}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}

	failed := 0
	for _, err := range chanErrs {
		if err != nil {
			failed++
		}
	}
	if failed == len(channels) {
		return nil, errors.Unavailable("all retrieval channels failed", chanErrs[0])
	}
	return ranked, nil
}

// vectorChannel translates and embeds the query, then runs ANN search
// over an oversampled window so post-filters keep enough candidates.
// The ANN call runs under its own VectorTimeout deadline; the embed and
// translate clients enforce theirs internally.
func (e *Engine) vectorChannel(ctx context.Context, req UnifiedRequest) ([]uint64, error) {
	text, err := e.translator.Translate(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	oversample := req.Oversample
	if oversample <= 0 {
		oversample = e.config.Oversample
	}
	topK := req.Page * req.Size * oversample

	annCtx, cancel := context.WithTimeout(ctx, e.config.VectorTimeout)
	defer cancel()

	hits, err := e.vectors.Search(annCtx, emb, topK, req.ExcludeIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// asrChannel searches captions as time segments, projects each segment
// onto a keyframe-number range at the configured fps, and samples keys
// evenly from each range. Rank order is segment relevance order.
func (e *Engine) asrChannel(ctx context.Context, text string) ([]uint64, error) {
	segs, err := e.meta.SearchSegments(ctx, text, asrSegmentLimit)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, nil
	}

	fps := float64(e.config.FPS)
	ranges := make([]store.FrameRange, 0, len(segs))
	for _, seg := range segs {
		ranges = append(ranges, store.FrameRange{
			GroupNum: seg.GroupNum,
			VideoNum: seg.VideoNum,
			KfStart:  int(math.Floor(seg.Start * fps)),
			KfEnd:    int(math.Ceil(seg.End * fps)),
		})
	}
	return e.meta.KeysInTimeRanges(ctx, ranges, asrPerRangeLimit)
}

// ocrChannel searches on-screen text and ranks by relevance order.
func (e *Engine) ocrChannel(ctx context.Context, text string) ([]uint64, error) {
	hits, err := e.meta.SearchText(ctx, store.SourceOCR, text, ocrResultLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.Key
	}
	return ids, nil
}

// materialize resolves the fused ranking to display rows; the store
// applies the scope filter and the page window while preserving order.
func (e *Engine) materialize(ctx context.Context, fused []uint64, req UnifiedRequest) ([]Result, error) {
	if len(fused) == 0 {
		return []Result{}, nil
	}

	rows, err := e.meta.GetByKeys(ctx, store.GetByKeysQuery{
		Keys:      fused,
		GroupNums: req.GroupNums,
		VideoNums: req.VideoNums,
		Page:      req.Page,
		Size:      req.Size,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{ID: row.Key, Path: e.paths.Resolve(row)})
	}
	return results, nil
}

// totalPages is the collection-level page count: ceil(size of the vector
// index / page size), independent of query content.
func (e *Engine) totalPages(size int) int {
	total := e.vectors.Size()
	if size <= 0 {
		return 0
	}
	return int((total + uint64(size) - 1) / uint64(size))
}

func weightOr(override *float64, fallback float64) float64 {
	if override != nil {
		return *override
	}
	return fallback
}
