// Package ingest builds the serving stores from archive export files:
// the id2index map, per-frame object detections, caption and OCR JSONL,
// and embedding JSONL. It is the only writer in the system and runs
// offline; serve opens its output read-only.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/store"
)

const defaultBatchSize = 1000

// Config locates the export files. CaptionsPath, OCRPath, and ObjectsDir
// are optional; the corresponding channel is simply empty without them.
type Config struct {
	// ID2IndexPath is a JSON object mapping key to "Lgg_Vvvv_kkk".
	ID2IndexPath string
	// ObjectsDir holds per-frame detection JSONs as
	// <dir>/Lgg_Vvvv/<keyframe_num>.json with detection_class_entities.
	ObjectsDir string
	// CaptionsPath is JSONL of {group_num, video_num, start, end, text}.
	CaptionsPath string
	// OCRPath is JSONL of {key, text}.
	OCRPath string
	// EmbeddingsPath is JSONL of {key, embedding}.
	EmbeddingsPath string
	// BatchSize bounds rows per store transaction (default: 1000).
	BatchSize int
}

// Stats summarizes one pipeline run.
type Stats struct {
	Keyframes  int
	Objects    int
	Captions   int
	OCRTexts   int
	Embeddings int
}

// Pipeline writes the export files into the serving stores.
type Pipeline struct {
	meta     *store.SQLiteStore
	vectors  *store.HNSWIndex
	asrIndex *store.BleveTextIndex
	ocrIndex *store.BleveTextIndex
	config   Config
	logger   *slog.Logger
}

// New wires the pipeline. asrIndex and ocrIndex may be nil when bleve
// indexing is disabled; search then relies on the FTS5 strategy.
func New(
	meta *store.SQLiteStore,
	vectors *store.HNSWIndex,
	asrIndex, ocrIndex *store.BleveTextIndex,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		meta:     meta,
		vectors:  vectors,
		asrIndex: asrIndex,
		ocrIndex: ocrIndex,
		config:   cfg,
		logger:   logger,
	}
}

// Run executes the full pipeline: keyframes and objects, captions, OCR,
// embeddings.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	keyframes, err := p.loadKeyframes()
	if err != nil {
		return nil, err
	}
	stats.Keyframes = len(keyframes)
	for _, kf := range keyframes {
		stats.Objects += len(kf.Objects)
	}

	for start := 0; start < len(keyframes); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(keyframes) {
			end = len(keyframes)
		}
		if err := p.meta.AddKeyframes(ctx, keyframes[start:end]); err != nil {
			return nil, fmt.Errorf("store keyframes: %w", err)
		}
	}
	p.logger.Info("keyframes ingested",
		slog.Int("keyframes", stats.Keyframes),
		slog.Int("object_rows", stats.Objects))

	if p.config.CaptionsPath != "" {
		n, err := p.ingestCaptions(ctx)
		if err != nil {
			return nil, err
		}
		stats.Captions = n
		p.logger.Info("captions ingested", slog.Int("captions", n))
	}

	if p.config.OCRPath != "" {
		n, err := p.ingestOCR(ctx)
		if err != nil {
			return nil, err
		}
		stats.OCRTexts = n
		p.logger.Info("ocr texts ingested", slog.Int("texts", n))
	}

	if p.config.EmbeddingsPath != "" {
		n, err := p.ingestEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		stats.Embeddings = n
		p.logger.Info("embeddings ingested", slog.Int("vectors", n))
	}

	return stats, nil
}

// loadKeyframes reads the id2index map and attaches object counts.
func (p *Pipeline) loadKeyframes() ([]archive.Keyframe, error) {
	data, err := os.ReadFile(p.config.ID2IndexPath)
	if err != nil {
		return nil, fmt.Errorf("read id2index: %w", err)
	}

	var id2index map[string]string
	if err := json.Unmarshal(data, &id2index); err != nil {
		return nil, fmt.Errorf("parse id2index: %w", err)
	}

	keyframes := make([]archive.Keyframe, 0, len(id2index))
	for rawKey, frameID := range id2index {
		var key uint64
		if _, err := fmt.Sscanf(rawKey, "%d", &key); err != nil {
			return nil, fmt.Errorf("non-numeric key %q in id2index", rawKey)
		}
		g, v, kf, err := parseFrameIndex(frameID)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", key, err)
		}
		keyframes = append(keyframes, archive.Keyframe{
			Key: key, GroupNum: g, VideoNum: v, KeyframeNum: kf,
		})
	}
	sort.Slice(keyframes, func(i, j int) bool { return keyframes[i].Key < keyframes[j].Key })

	if p.config.ObjectsDir != "" {
		if err := p.attachObjects(keyframes); err != nil {
			return nil, err
		}
	}
	return keyframes, nil
}

// parseFrameIndex parses "Lgg_Vvvv_kkk" into its coordinates.
func parseFrameIndex(s string) (group, video, keyframe int, err error) {
	if _, err := fmt.Sscanf(s, "L%d_V%d_%d", &group, &video, &keyframe); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed frame index %q", s)
	}
	return group, video, keyframe, nil
}

// detectionFile is one per-frame detection export.
type detectionFile struct {
	Entities []string `json:"detection_class_entities"`
}

// attachObjects aggregates detection entities into per-name counts.
// A keyframe without a detection file keeps an empty object list.
func (p *Pipeline) attachObjects(keyframes []archive.Keyframe) error {
	for i := range keyframes {
		kf := &keyframes[i]
		path := filepath.Join(p.config.ObjectsDir,
			fmt.Sprintf("L%02d_V%03d", kf.GroupNum, kf.VideoNum),
			fmt.Sprintf("%03d.json", kf.KeyframeNum))

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read detections for key %d: %w", kf.Key, err)
		}

		var det detectionFile
		if err := json.Unmarshal(data, &det); err != nil {
			return fmt.Errorf("parse detections for key %d: %w", kf.Key, err)
		}

		counts := make(map[string]int)
		for _, name := range det.Entities {
			counts[strings.ToLower(strings.TrimSpace(name))]++
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			kf.Objects = append(kf.Objects, archive.ObjectCount{Name: name, Count: counts[name]})
		}
	}
	return nil
}

// captionLine is one caption JSONL record.
type captionLine struct {
	GroupNum int     `json:"group_num"`
	VideoNum int     `json:"video_num"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
}

func (p *Pipeline) ingestCaptions(ctx context.Context) (int, error) {
	total := 0
	batch := make([]archive.SpeechCaption, 0, p.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ids, err := p.meta.AddCaptions(ctx, batch)
		if err != nil {
			return fmt.Errorf("store captions: %w", err)
		}
		if p.asrIndex != nil {
			docIDs := make([]uint64, len(ids))
			texts := make([]string, len(ids))
			for i, id := range ids {
				docIDs[i] = uint64(id)
				texts[i] = batch[i].Text
			}
			if err := p.asrIndex.Index(ctx, docIDs, texts); err != nil {
				return fmt.Errorf("index captions: %w", err)
			}
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := eachJSONLine(p.config.CaptionsPath, func(data []byte) error {
		var line captionLine
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("parse caption line: %w", err)
		}
		batch = append(batch, archive.SpeechCaption{
			GroupNum: line.GroupNum,
			VideoNum: line.VideoNum,
			Start:    line.Start,
			End:      line.End,
			Text:     line.Text,
		})
		if len(batch) == p.config.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

// ocrLine is one OCR JSONL record.
type ocrLine struct {
	Key  uint64 `json:"key"`
	Text string `json:"text"`
}

func (p *Pipeline) ingestOCR(ctx context.Context) (int, error) {
	total := 0
	batch := make([]store.OCRText, 0, p.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.meta.AddOCRTexts(ctx, batch); err != nil {
			return fmt.Errorf("store ocr texts: %w", err)
		}
		if p.ocrIndex != nil {
			keys := make([]uint64, len(batch))
			texts := make([]string, len(batch))
			for i, row := range batch {
				keys[i] = row.Key
				texts[i] = row.Text
			}
			if err := p.ocrIndex.Index(ctx, keys, texts); err != nil {
				return fmt.Errorf("index ocr texts: %w", err)
			}
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := eachJSONLine(p.config.OCRPath, func(data []byte) error {
		var line ocrLine
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("parse ocr line: %w", err)
		}
		batch = append(batch, store.OCRText{Key: line.Key, Text: line.Text})
		if len(batch) == p.config.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

// embeddingLine is one embedding JSONL record.
type embeddingLine struct {
	Key       uint64    `json:"key"`
	Embedding []float32 `json:"embedding"`
}

func (p *Pipeline) ingestEmbeddings(ctx context.Context) (int, error) {
	total := 0
	keys := make([]uint64, 0, p.config.BatchSize)
	vecs := make([][]float32, 0, p.config.BatchSize)

	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := p.vectors.Add(ctx, keys, vecs); err != nil {
			return fmt.Errorf("index embeddings: %w", err)
		}
		total += len(keys)
		keys = keys[:0]
		vecs = vecs[:0]
		return nil
	}

	err := eachJSONLine(p.config.EmbeddingsPath, func(data []byte) error {
		var line embeddingLine
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("parse embedding line: %w", err)
		}
		keys = append(keys, line.Key)
		vecs = append(vecs, line.Embedding)
		if len(keys) == p.config.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

// eachJSONLine streams a JSONL file, skipping blank lines.
func eachJSONLine(path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(path), lineNum, err)
		}
	}
	return scanner.Err()
}
