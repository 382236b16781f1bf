// Package archive defines the keyframe archive data model shared by the
// stores and the search engine.
package archive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aicvlab/frameseek/internal/errors"
)

// Keyframe is one row of the keyframe metadata store.
// (GroupNum, VideoNum, KeyframeNum) is unique across the archive; Key is the
// dense join key shared with the vector index.
type Keyframe struct {
	Key         uint64        `json:"key"`
	GroupNum    int           `json:"group_num"`
	VideoNum    int           `json:"video_num"`
	KeyframeNum int           `json:"keyframe_num"`
	Objects     []ObjectCount `json:"objects,omitempty"`
}

// ObjectCount records how many instances of a detected object class appear
// in a keyframe. Names are unique within one keyframe.
type ObjectCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SpeechCaption is a transcript fragment of a video, in seconds.
type SpeechCaption struct {
	GroupNum int     `json:"group_num"`
	VideoNum int     `json:"video_num"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
}

// CmpOp is a comparison operator in an object filter.
type CmpOp string

const (
	CmpEq  CmpOp = "eq"
	CmpNeq CmpOp = "neq"
	CmpGt  CmpOp = "gt"
	CmpGte CmpOp = "gte"
	CmpLt  CmpOp = "lt"
	CmpLte CmpOp = "lte"
)

// Valid reports whether the operator is one of the six supported.
func (op CmpOp) Valid() bool {
	switch op {
	case CmpEq, CmpNeq, CmpGt, CmpGte, CmpLt, CmpLte:
		return true
	}
	return false
}

// SQL returns the SQL comparison operator.
func (op CmpOp) SQL() string {
	switch op {
	case CmpEq:
		return "="
	case CmpNeq:
		return "!="
	case CmpGt:
		return ">"
	case CmpGte:
		return ">="
	case CmpLt:
		return "<"
	case CmpLte:
		return "<="
	}
	return "="
}

// Matches applies the operator to (have, want).
func (op CmpOp) Matches(have, want int) bool {
	switch op {
	case CmpEq:
		return have == want
	case CmpNeq:
		return have != want
	case CmpGt:
		return have > want
	case CmpGte:
		return have >= want
	case CmpLt:
		return have < want
	case CmpLte:
		return have <= want
	}
	return false
}

// ObjectFilter is one conjunct of an object predicate: the keyframe must
// contain an object named Name whose count satisfies Cmp against Count.
type ObjectFilter struct {
	Name  string `json:"name"`
	Cmp   CmpOp  `json:"cmp"`
	Count int    `json:"count"`
}

// ParseObjectFilters normalizes both accepted encodings into one
// representation: a JSON array of {name,cmp,count} objects, or the compact
// string form "name:cmp:count,...". Empty input means no filtering.
// Downstream code only ever sees the structured form.
func ParseObjectFilters(raw string) ([]ObjectFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") {
		var filters []ObjectFilter
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return nil, errors.InvalidFilter("obj_filters is not a valid JSON array", err)
		}
		for _, f := range filters {
			if err := validateFilter(f); err != nil {
				return nil, err
			}
		}
		return filters, nil
	}

	var filters []ObjectFilter
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := strings.SplitN(token, ":", 3)
		if len(parts) != 3 {
			return nil, errors.InvalidFilter(
				fmt.Sprintf("obj_filters token %q: want name:cmp:count", token), nil)
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, errors.InvalidFilter(
				fmt.Sprintf("obj_filters token %q: count is not an integer", token), err)
		}
		f := ObjectFilter{
			Name:  strings.TrimSpace(parts[0]),
			Cmp:   CmpOp(strings.TrimSpace(parts[1])),
			Count: count,
		}
		if err := validateFilter(f); err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func validateFilter(f ObjectFilter) error {
	if f.Name == "" {
		return errors.InvalidFilter("obj_filters entry has empty name", nil)
	}
	if !f.Cmp.Valid() {
		return errors.InvalidFilter(
			fmt.Sprintf("obj_filters entry %q: unknown operator %q", f.Name, f.Cmp), nil)
	}
	if f.Count < 0 {
		return errors.InvalidFilter(
			fmt.Sprintf("obj_filters entry %q: negative count", f.Name), nil)
	}
	return nil
}
