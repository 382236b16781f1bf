package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/errors"
)

// sqliteVarChunk keeps IN(...) parameter lists under SQLite's variable cap.
const sqliteVarChunk = 500

// SQLiteStoreConfig configures the metadata store.
type SQLiteStoreConfig struct {
	// Path is the database file; empty means in-memory (tests).
	Path string
	// FPS projects caption seconds onto keyframe numbers for key-typed
	// caption search (default: 30).
	FPS int
}

// SQLiteStore implements MetadataStore over SQLite. The FTS5 virtual
// tables are the secondary text strategy; optional bleve TextIndexes are
// the primary; a substring scan is the last resort.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	config SQLiteStoreConfig
	closed bool

	asrIndex TextIndex
	ocrIndex TextIndex
}

// Verify interface implementation at compile time.
var _ MetadataStore = (*SQLiteStore)(nil)

// SQLiteStoreOption configures optional collaborators.
type SQLiteStoreOption func(*SQLiteStore)

// WithASRTextIndex installs the primary full-text index over captions.
func WithASRTextIndex(idx TextIndex) SQLiteStoreOption {
	return func(s *SQLiteStore) { s.asrIndex = idx }
}

// WithOCRTextIndex installs the primary full-text index over OCR text.
func WithOCRTextIndex(idx TextIndex) SQLiteStoreOption {
	return func(s *SQLiteStore) { s.ocrIndex = idx }
}

// NewSQLiteStore opens (or creates) the metadata database.
// WAL mode enables concurrent read access across request goroutines.
func NewSQLiteStore(cfg SQLiteStoreConfig, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = cfg.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	// Single connection: keeps :memory: databases coherent and avoids
	// writer lock contention during ingest.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS keyframes (
		key          INTEGER PRIMARY KEY,
		group_num    INTEGER NOT NULL,
		video_num    INTEGER NOT NULL,
		keyframe_num INTEGER NOT NULL,
		UNIQUE (group_num, video_num, keyframe_num)
	);
	CREATE INDEX IF NOT EXISTS idx_keyframes_gvk
		ON keyframes (group_num, video_num, keyframe_num);

	CREATE TABLE IF NOT EXISTS keyframe_objects (
		key   INTEGER NOT NULL REFERENCES keyframes(key) ON DELETE CASCADE,
		name  TEXT    NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (key, name)
	);
	CREATE INDEX IF NOT EXISTS idx_objects_name ON keyframe_objects (name);

	CREATE TABLE IF NOT EXISTS speech_captions (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		group_num INTEGER NOT NULL,
		video_num INTEGER NOT NULL,
		start_sec REAL    NOT NULL,
		end_sec   REAL    NOT NULL,
		text      TEXT    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captions_gv
		ON speech_captions (group_num, video_num);

	CREATE TABLE IF NOT EXISTS ocr_texts (
		key  INTEGER PRIMARY KEY REFERENCES keyframes(key) ON DELETE CASCADE,
		text TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS captions_fts USING fts5(
		caption_id UNINDEXED,
		text,
		tokenize='unicode61'
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS ocr_fts USING fts5(
		key UNINDEXED,
		text,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddKeyframes inserts keyframe rows with their object counts.
// Existing keys are replaced. Write path for `frameseek ingest` only.
func (s *SQLiteStore) AddKeyframes(ctx context.Context, rows []archive.Keyframe) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store: closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	kfStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO keyframes (key, group_num, video_num, keyframe_num)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare keyframe insert: %w", err)
	}
	defer kfStmt.Close()

	objStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO keyframe_objects (key, name, count)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare object insert: %w", err)
	}
	defer objStmt.Close()

	for _, kf := range rows {
		if _, err := kfStmt.ExecContext(ctx, kf.Key, kf.GroupNum, kf.VideoNum, kf.KeyframeNum); err != nil {
			return fmt.Errorf("insert keyframe %d: %w", kf.Key, err)
		}
		for _, obj := range kf.Objects {
			if _, err := objStmt.ExecContext(ctx, kf.Key, obj.Name, obj.Count); err != nil {
				return fmt.Errorf("insert object %q for keyframe %d: %w", obj.Name, kf.Key, err)
			}
		}
	}
	return tx.Commit()
}

// AddCaptions inserts speech captions plus their FTS5 rows and returns the
// assigned caption row ids, aligned with the input.
func (s *SQLiteStore) AddCaptions(ctx context.Context, captions []archive.SpeechCaption) ([]int64, error) {
	if len(captions) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store: closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	capStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO speech_captions (group_num, video_num, start_sec, end_sec, text)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare caption insert: %w", err)
	}
	defer capStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO captions_fts (caption_id, text) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare caption FTS insert: %w", err)
	}
	defer ftsStmt.Close()

	ids := make([]int64, 0, len(captions))
	for _, c := range captions {
		text := strings.ToLower(c.Text)
		res, err := capStmt.ExecContext(ctx, c.GroupNum, c.VideoNum, c.Start, c.End, text)
		if err != nil {
			return nil, fmt.Errorf("insert caption: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("caption row id: %w", err)
		}
		if _, err := ftsStmt.ExecContext(ctx, id, text); err != nil {
			return nil, fmt.Errorf("insert caption FTS row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// OCRText pairs a keyframe key with its recognized on-screen text.
type OCRText struct {
	Key  uint64
	Text string
}

// AddOCRTexts inserts OCR rows plus their FTS5 rows.
func (s *SQLiteStore) AddOCRTexts(ctx context.Context, rows []OCRText) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store: closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ocrStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO ocr_texts (key, text) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare OCR insert: %w", err)
	}
	defer ocrStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ocr_fts (key, text) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare OCR FTS insert: %w", err)
	}
	defer ftsStmt.Close()

	for _, row := range rows {
		text := strings.ToLower(row.Text)
		if _, err := ocrStmt.ExecContext(ctx, row.Key, text); err != nil {
			return fmt.Errorf("insert OCR text for keyframe %d: %w", row.Key, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, row.Key, text); err != nil {
			return fmt.Errorf("insert OCR FTS row for keyframe %d: %w", row.Key, err)
		}
	}
	return tx.Commit()
}

// GetByKeys materializes keyframe rows per the GetByKeysQuery contract.
func (s *SQLiteStore) GetByKeys(ctx context.Context, q GetByKeysQuery) ([]archive.Keyframe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	scopeSQL, scopeArgs := scopeClause(q.GroupNums, q.VideoNums)

	if len(q.Keys) == 0 {
		return s.listByArchiveOrder(ctx, scopeSQL, scopeArgs, page, size)
	}

	// Order-preserving join: fetch matching rows, then emit in input key
	// order, dropping unknown keys, then apply the page window.
	byKey := make(map[uint64]archive.Keyframe, len(q.Keys))
	for start := 0; start < len(q.Keys); start += sqliteVarChunk {
		end := start + sqliteVarChunk
		if end > len(q.Keys) {
			end = len(q.Keys)
		}
		chunk := q.Keys[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		query := fmt.Sprintf(`
			SELECT key, group_num, video_num, keyframe_num
			FROM keyframes
			WHERE key IN (%s)%s`, placeholders, scopeSQL)

		args := make([]any, 0, len(chunk)+len(scopeArgs))
		for _, k := range chunk {
			args = append(args, k)
		}
		args = append(args, scopeArgs...)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Unavailable("keyframe lookup failed", err)
		}
		if err := scanKeyframes(rows, func(kf archive.Keyframe) {
			byKey[kf.Key] = kf
		}); err != nil {
			return nil, errors.Unavailable("keyframe scan failed", err)
		}
	}

	ordered := make([]archive.Keyframe, 0, len(byKey))
	for _, k := range q.Keys {
		if kf, ok := byKey[k]; ok {
			ordered = append(ordered, kf)
		}
	}

	offset := (page - 1) * size
	if offset >= len(ordered) {
		return []archive.Keyframe{}, nil
	}
	end := offset + size
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[offset:end], nil
}

func (s *SQLiteStore) listByArchiveOrder(ctx context.Context, scopeSQL string, scopeArgs []any, page, size int) ([]archive.Keyframe, error) {
	where := ""
	if scopeSQL != "" {
		// scopeSQL begins with " AND"; rewrite as a WHERE clause.
		where = " WHERE" + strings.TrimPrefix(scopeSQL, " AND")
	}
	query := fmt.Sprintf(`
		SELECT key, group_num, video_num, keyframe_num
		FROM keyframes%s
		ORDER BY group_num ASC, video_num ASC, keyframe_num ASC
		LIMIT ? OFFSET ?`, where)

	args := append(append([]any{}, scopeArgs...), size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable("keyframe listing failed", err)
	}

	out := make([]archive.Keyframe, 0, size)
	if err := scanKeyframes(rows, func(kf archive.Keyframe) {
		out = append(out, kf)
	}); err != nil {
		return nil, errors.Unavailable("keyframe scan failed", err)
	}
	return out, nil
}

// scopeClause renders group/video scoping as a trailing " AND (...)"
// fragment. Positional pairs apply when both lists have equal length; a
// video entry of -1 scopes the whole group.
func scopeClause(groupNums, videoNums []int) (string, []any) {
	switch {
	case len(groupNums) == 0 && len(videoNums) == 0:
		return "", nil

	case len(groupNums) > 0 && len(videoNums) == len(groupNums):
		conds := make([]string, 0, len(groupNums))
		args := make([]any, 0, len(groupNums)*2)
		for i, g := range groupNums {
			if videoNums[i] == -1 {
				conds = append(conds, "group_num = ?")
				args = append(args, g)
			} else {
				conds = append(conds, "(group_num = ? AND video_num = ?)")
				args = append(args, g, videoNums[i])
			}
		}
		return " AND (" + strings.Join(conds, " OR ") + ")", args

	case len(groupNums) > 0:
		placeholders := strings.Repeat("?,", len(groupNums))
		args := make([]any, len(groupNums))
		for i, g := range groupNums {
			args[i] = g
		}
		return " AND group_num IN (" + placeholders[:len(placeholders)-1] + ")", args

	default:
		placeholders := strings.Repeat("?,", len(videoNums))
		args := make([]any, len(videoNums))
		for i, v := range videoNums {
			args[i] = v
		}
		return " AND video_num IN (" + placeholders[:len(placeholders)-1] + ")", args
	}
}

func scanKeyframes(rows *sql.Rows, emit func(archive.Keyframe)) error {
	defer rows.Close()
	for rows.Next() {
		var kf archive.Keyframe
		if err := rows.Scan(&kf.Key, &kf.GroupNum, &kf.VideoNum, &kf.KeyframeNum); err != nil {
			return err
		}
		emit(kf)
	}
	return rows.Err()
}

// FilterByObjects keeps ids whose keyframe satisfies every filter; the
// result is a stable subsequence of ids.
func (s *SQLiteStore) FilterByObjects(ctx context.Context, ids []uint64, filters []archive.ObjectFilter) ([]uint64, error) {
	if len(filters) == 0 {
		out := make([]uint64, len(ids))
		copy(out, ids)
		return out, nil
	}
	if len(ids) == 0 {
		return []uint64{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	// One EXISTS conjunct per filter; a keyframe passes when each filter
	// matches at least one of its object rows.
	conds := make([]string, 0, len(filters))
	filterArgs := make([]any, 0, len(filters)*2)
	for _, f := range filters {
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM keyframe_objects o
			WHERE o.key = keyframes.key AND o.name = ? AND o.count %s ?)`, f.Cmp.SQL()))
		filterArgs = append(filterArgs, f.Name, f.Count)
	}
	condSQL := strings.Join(conds, " AND ")

	keep := make(map[uint64]struct{}, len(ids))
	for start := 0; start < len(ids); start += sqliteVarChunk {
		end := start + sqliteVarChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		query := fmt.Sprintf(`
			SELECT key FROM keyframes
			WHERE key IN (%s) AND %s`,
			placeholders[:len(placeholders)-1], condSQL)

		args := make([]any, 0, len(chunk)+len(filterArgs))
		for _, id := range chunk {
			args = append(args, id)
		}
		args = append(args, filterArgs...)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Unavailable("object filter failed", err)
		}
		if err := func() error {
			defer rows.Close()
			for rows.Next() {
				var key uint64
				if err := rows.Scan(&key); err != nil {
					return err
				}
				keep[key] = struct{}{}
			}
			return rows.Err()
		}(); err != nil {
			return nil, errors.Unavailable("object filter scan failed", err)
		}
	}

	out := make([]uint64, 0, len(keep))
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// DistinctObjectNames enumerates known object class names, sorted.
func (s *SQLiteStore) DistinctObjectNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM keyframe_objects ORDER BY name`)
	if err != nil {
		return nil, errors.Unavailable("object name listing failed", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Unavailable("object name scan failed", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// KeysInTimeRanges selects up to perRangeLimit keys per range, evenly
// spaced by keyframe number. Keys are de-duplicated across ranges keeping
// the first occurrence; order is range order, ascending keyframe number
// within each range.
func (s *SQLiteStore) KeysInTimeRanges(ctx context.Context, ranges []FrameRange, perRangeLimit int) ([]uint64, error) {
	if len(ranges) == 0 || perRangeLimit <= 0 {
		return []uint64{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	seen := make(map[uint64]struct{})
	var out []uint64
	for _, r := range ranges {
		keys, err := s.sampleRange(ctx, r, perRangeLimit)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	if out == nil {
		out = []uint64{}
	}
	return out, nil
}

// sampleRange picks evenly spaced keys from one range, preferring a
// bucketed window-function aggregation and falling back to a client-side
// linspace sample over the sorted keys.
func (s *SQLiteStore) sampleRange(ctx context.Context, r FrameRange, limit int) ([]uint64, error) {
	query := `
		WITH ranked AS (
			SELECT key, keyframe_num,
			       NTILE(?) OVER (ORDER BY keyframe_num) AS bucket
			FROM keyframes
			WHERE group_num = ? AND video_num = ?
			  AND keyframe_num >= ? AND keyframe_num <= ?
		)
		SELECT key FROM ranked a
		WHERE keyframe_num = (
			SELECT MIN(keyframe_num) FROM ranked b WHERE b.bucket = a.bucket
		)
		ORDER BY keyframe_num`

	rows, err := s.db.QueryContext(ctx, query, limit, r.GroupNum, r.VideoNum, r.KfStart, r.KfEnd)
	if err != nil {
		slog.Warn("bucketed range sampling unavailable, falling back to client-side sample",
			slog.String("error", err.Error()))
		return s.sampleRangeClientSide(ctx, r, limit)
	}
	defer rows.Close()

	var keys []uint64
	for rows.Next() {
		var key uint64
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Unavailable("range sample scan failed", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) sampleRangeClientSide(ctx context.Context, r FrameRange, limit int) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM keyframes
		WHERE group_num = ? AND video_num = ?
		  AND keyframe_num >= ? AND keyframe_num <= ?
		ORDER BY keyframe_num`,
		r.GroupNum, r.VideoNum, r.KfStart, r.KfEnd)
	if err != nil {
		return nil, errors.Unavailable("range listing failed", err)
	}
	defer rows.Close()

	var all []uint64
	for rows.Next() {
		var key uint64
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Unavailable("range scan failed", err)
		}
		all = append(all, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable("range scan failed", err)
	}
	return linspaceSample(all, limit), nil
}

// linspaceSample picks n evenly spaced elements by index from the sorted
// slice, always including the first element.
func linspaceSample(keys []uint64, n int) []uint64 {
	if len(keys) <= n {
		return keys
	}
	out := make([]uint64, 0, n)
	step := float64(len(keys)-1) / float64(n-1)
	last := -1
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		if idx == last {
			continue
		}
		last = idx
		out = append(out, keys[idx])
	}
	return out
}

// captionKeys projects caption rows onto keyframe keys using the store's
// FPS, keeping the best score per key. The floor/ceil projection matches
// the segment-typed path, so both caption routes hit the same ranges.
func (s *SQLiteStore) captionKeys(ctx context.Context, segs []captionRow, limit int) ([]ScoredKey, error) {
	fps := float64(s.config.FPS)
	best := make(map[uint64]float64)
	var order []uint64
	for _, seg := range segs {
		r := FrameRange{
			GroupNum: seg.GroupNum,
			VideoNum: seg.VideoNum,
			KfStart:  int(math.Floor(seg.Start * fps)),
			KfEnd:    int(math.Ceil(seg.End * fps)),
		}
		keys, err := s.sampleRange(ctx, r, limit)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if old, ok := best[k]; !ok || seg.Score > old {
				if !ok {
					order = append(order, k)
				}
				best[k] = seg.Score
			}
		}
	}

	out := make([]ScoredKey, 0, len(order))
	for _, k := range order {
		out = append(out, ScoredKey{Key: k, Score: best[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close closes the database and any attached text indexes.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.asrIndex != nil {
		_ = s.asrIndex.Close()
	}
	if s.ocrIndex != nil {
		_ = s.ocrIndex.Close()
	}
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
