package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicvlab/frameseek/internal/errors"
)

func TestParseObjectFiltersString(t *testing.T) {
	filters, err := ParseObjectFilters("person:gte:2, car:eq:1")
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, ObjectFilter{Name: "person", Cmp: CmpGte, Count: 2}, filters[0])
	assert.Equal(t, ObjectFilter{Name: "car", Cmp: CmpEq, Count: 1}, filters[1])
}

func TestParseObjectFiltersJSON(t *testing.T) {
	filters, err := ParseObjectFilters(`[{"name":"dog","cmp":"lt","count":3}]`)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, ObjectFilter{Name: "dog", Cmp: CmpLt, Count: 3}, filters[0])
}

func TestParseObjectFiltersEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", ","} {
		filters, err := ParseObjectFilters(raw)
		require.NoError(t, err, "raw %q", raw)
		assert.Empty(t, filters)
	}
}

func TestParseObjectFiltersRejectsMalformed(t *testing.T) {
	tests := []string{
		"person",                           // missing cmp and count
		"person:gte",                       // missing count
		"person:gte:two",                   // non-integer count
		"person:between:2",                 // unknown operator
		":gte:2",                           // empty name
		"person:gte:-1",                    // negative count
		`[{"name":"","cmp":"eq","count"`,   // truncated JSON
		`[{"name":"","cmp":"eq","count":1}]`, // empty name in JSON form
	}
	for _, raw := range tests {
		_, err := ParseObjectFilters(raw)
		require.Error(t, err, "raw %q", raw)
		assert.Equal(t, errors.KindBadRequest, errors.KindOf(err), "raw %q", raw)
	}
}

func TestCmpOpMatches(t *testing.T) {
	tests := []struct {
		op         CmpOp
		have, want int
		expect     bool
	}{
		{CmpEq, 2, 2, true},
		{CmpEq, 2, 3, false},
		{CmpNeq, 2, 3, true},
		{CmpGt, 3, 2, true},
		{CmpGt, 2, 2, false},
		{CmpGte, 2, 2, true},
		{CmpLt, 1, 2, true},
		{CmpLte, 2, 2, true},
		{CmpLte, 3, 2, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, tt.op.Matches(tt.have, tt.want),
			"%d %s %d", tt.have, tt.op, tt.want)
	}
}

func TestCmpOpSQL(t *testing.T) {
	assert.Equal(t, "=", CmpEq.SQL())
	assert.Equal(t, "!=", CmpNeq.SQL())
	assert.Equal(t, ">", CmpGt.SQL())
	assert.Equal(t, ">=", CmpGte.SQL())
	assert.Equal(t, "<", CmpLt.SQL())
	assert.Equal(t, "<=", CmpLte.SQL())
}
