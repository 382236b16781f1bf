package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aicvlab/frameseek/internal/errors"
)

// captionRow is a speech_captions row with a retrieval score attached.
type captionRow struct {
	ID       int64
	GroupNum int
	VideoNum int
	Start    float64
	End      float64
	Text     string
	Score    float64
}

// SearchText runs the strategy chain over the source corpus and returns
// keyframe keys, score-descending. Strategies are tried in order; the
// first that yields any hit wins. A strategy error demotes to the next
// strategy rather than failing the search.
func (s *SQLiteStore) SearchText(ctx context.Context, source TextSource, text string, limit int) ([]ScoredKey, error) {
	text = strings.TrimSpace(text)
	if text == "" || limit <= 0 {
		return []ScoredKey{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	switch source {
	case SourceASR:
		return s.searchASRKeys(ctx, text, limit)
	case SourceOCR:
		return s.searchOCRKeys(ctx, text, limit)
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unknown text source %q", source), nil)
	}
}

func (s *SQLiteStore) searchASRKeys(ctx context.Context, text string, limit int) ([]ScoredKey, error) {
	segs, err := s.captionChain(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return []ScoredKey{}, nil
	}
	return s.captionKeys(ctx, segs, limit)
}

func (s *SQLiteStore) searchOCRKeys(ctx context.Context, text string, limit int) ([]ScoredKey, error) {
	// Strategy 1: bleve, when installed. OCR documents are keyed by the
	// keyframe key directly.
	if s.ocrIndex != nil {
		hits, err := s.ocrIndex.Search(ctx, text, limit)
		if err != nil {
			slog.Warn("OCR text index failed, falling back to FTS5",
				slog.String("error", err.Error()))
		} else if len(hits) > 0 {
			return hits, nil
		}
	}

	// Strategy 2: FTS5 with bm25 relevance. bm25() is smaller-is-better,
	// so negate for a descending score.
	hits, err := s.queryScoredKeys(ctx, `
		SELECT key, -bm25(ocr_fts) AS score
		FROM ocr_fts
		WHERE ocr_fts MATCH ?
		ORDER BY score DESC
		LIMIT ?`, fts5Query(text), limit)
	if err != nil {
		slog.Warn("OCR FTS5 query failed, falling back to substring scan",
			slog.String("error", err.Error()))
	} else if len(hits) > 0 {
		return hits, nil
	}

	// Strategy 3: case-insensitive substring scan, flat score.
	return s.queryScoredKeys(ctx, `
		SELECT key, 1.0 AS score
		FROM ocr_texts
		WHERE instr(text, ?) > 0
		LIMIT ?`, strings.ToLower(text), limit)
}

// SearchSegments runs the caption strategy chain and returns time
// segments, score-descending, truncated to min(limit, MaxSegmentResults).
func (s *SQLiteStore) SearchSegments(ctx context.Context, text string, limit int) ([]CaptionSegment, error) {
	text = strings.TrimSpace(text)
	if limit > MaxSegmentResults {
		limit = MaxSegmentResults
	}
	if text == "" || limit <= 0 {
		return []CaptionSegment{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.Unavailable("metadata store closed", nil)
	}

	segs, err := s.captionChain(ctx, text, limit)
	if err != nil {
		return nil, err
	}

	out := make([]CaptionSegment, 0, len(segs))
	for _, seg := range segs {
		out = append(out, CaptionSegment{
			GroupNum: seg.GroupNum,
			VideoNum: seg.VideoNum,
			Start:    seg.Start,
			End:      seg.End,
			Score:    seg.Score,
		})
	}
	return out, nil
}

// captionChain runs the three caption strategies in order, returning
// full caption rows for the first strategy that matches anything.
func (s *SQLiteStore) captionChain(ctx context.Context, text string, limit int) ([]captionRow, error) {
	// Strategy 1: bleve over caption documents, ids are caption row ids.
	if s.asrIndex != nil {
		hits, err := s.asrIndex.Search(ctx, text, limit)
		if err != nil {
			slog.Warn("caption text index failed, falling back to FTS5",
				slog.String("error", err.Error()))
		} else if len(hits) > 0 {
			rows, err := s.captionsByIDs(ctx, hits)
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 {
				return rows, nil
			}
		}
	}

	// Strategy 2: FTS5.
	rows, err := s.queryCaptions(ctx, `
		SELECT c.id, c.group_num, c.video_num, c.start_sec, c.end_sec, c.text,
		       -bm25(captions_fts) AS score
		FROM captions_fts
		JOIN speech_captions c ON c.id = captions_fts.caption_id
		WHERE captions_fts MATCH ?
		ORDER BY score DESC
		LIMIT ?`, fts5Query(text), limit)
	if err != nil {
		slog.Warn("caption FTS5 query failed, falling back to substring scan",
			slog.String("error", err.Error()))
	} else if len(rows) > 0 {
		return rows, nil
	}

	// Strategy 3: substring scan.
	return s.queryCaptions(ctx, `
		SELECT id, group_num, video_num, start_sec, end_sec, text, 1.0 AS score
		FROM speech_captions
		WHERE instr(text, ?) > 0
		LIMIT ?`, strings.ToLower(text), limit)
}

// captionsByIDs resolves caption row ids from the text index to full
// rows, keeping the index scores and score-descending order.
func (s *SQLiteStore) captionsByIDs(ctx context.Context, hits []ScoredKey) ([]captionRow, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	scores := make(map[int64]float64, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		id := int64(h.Key)
		scores[id] = h.Score
		ids = append(ids, id)
	}

	byID := make(map[int64]captionRow, len(ids))
	for start := 0; start < len(ids); start += sqliteVarChunk {
		end := start + sqliteVarChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		query := fmt.Sprintf(`
			SELECT id, group_num, video_num, start_sec, end_sec, text
			FROM speech_captions
			WHERE id IN (%s)`, placeholders[:len(placeholders)-1])

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Unavailable("caption lookup failed", err)
		}
		if err := func() error {
			defer rows.Close()
			for rows.Next() {
				var c captionRow
				if err := rows.Scan(&c.ID, &c.GroupNum, &c.VideoNum, &c.Start, &c.End, &c.Text); err != nil {
					return err
				}
				byID[c.ID] = c
			}
			return rows.Err()
		}(); err != nil {
			return nil, errors.Unavailable("caption scan failed", err)
		}
	}

	out := make([]captionRow, 0, len(byID))
	for _, h := range hits {
		if c, ok := byID[int64(h.Key)]; ok {
			c.Score = scores[c.ID]
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *SQLiteStore) queryCaptions(ctx context.Context, query string, args ...any) ([]captionRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []captionRow
	for rows.Next() {
		var c captionRow
		if err := rows.Scan(&c.ID, &c.GroupNum, &c.VideoNum, &c.Start, &c.End, &c.Text, &c.Score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryScoredKeys(ctx context.Context, query string, args ...any) ([]ScoredKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ScoredKey{}
	for rows.Next() {
		var sk ScoredKey
		if err := rows.Scan(&sk.Key, &sk.Score); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// fts5Query renders free text as an FTS5 MATCH expression. Each token is
// double-quoted so user input never hits the FTS5 query parser syntax.
func fts5Query(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, ``)+`"`)
	}
	return strings.Join(quoted, " ")
}
