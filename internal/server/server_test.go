package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/search"
	"github.com/aicvlab/frameseek/internal/store"
)

// newTestServer wires a real engine over in-memory stores seeded with a
// tiny archive: keys 1..6 in group 1 video 1, keyframe numbers 0..50.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	ctx := context.Background()

	meta, err := store.NewSQLiteStore(store.SQLiteStoreConfig{FPS: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	var kfs []archive.Keyframe
	for i := 0; i < 6; i++ {
		kf := archive.Keyframe{Key: uint64(i + 1), GroupNum: 1, VideoNum: 1, KeyframeNum: i * 10}
		if i < 3 {
			kf.Objects = []archive.ObjectCount{{Name: "person", Count: i + 1}}
		}
		kfs = append(kfs, kf)
	}
	require.NoError(t, meta.AddKeyframes(ctx, kfs))
	require.NoError(t, meta.AddOCRTexts(ctx, []store.OCRText{{Key: 2, Text: "breaking news"}}))

	vectors, err := store.NewHNSWIndex(store.HNSWIndexConfig{Dimensions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })
	require.NoError(t, vectors.Add(ctx,
		[]uint64{1, 2, 3, 4, 5, 6},
		[][]float32{
			{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0, 1, 0, 0},
			{0, 0, 1, 0}, {0, 0, 0.9, 0.1}, {0, 0, 0, 1},
		}))

	dataRoot := t.TempDir()
	engine := search.NewEngine(vectors, meta, nil, nil,
		archive.NewPathResolver(dataRoot), search.EngineConfig{}, nil)

	return New(engine, Config{DataRoot: dataRoot}, nil), dataRoot
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchJSONOCROnly(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/keyframe/search",
		`{"ocr":"breaking","page":1,"size":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page search.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, uint64(2), page.Results[0].ID)
	assert.Contains(t, page.Results[0].Path, filepath.Join("Keyframes_L01", "L01_V001", "010.jpg"))
	assert.Equal(t, 1, page.TotalPage, "6 vectors / size 10")
}

func TestSearchJSONObjFilterStringForm(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/keyframe/search",
		`{"ocr":"breaking","obj_filters":"person:gte:2","page":1,"size":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page search.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Results, 1, "key 2 has person:2")
}

func TestSearchJSONObjFilterArrayForm(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/keyframe/search",
		`{"ocr":"breaking","obj_filters":[{"name":"person","cmp":"gte","count":3}],"page":1,"size":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page search.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Results, "key 2 has only person:2")
}

func TestSearchJSONMalformedFilter(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/keyframe/search",
		`{"obj_filters":"person:between:2","page":1,"size":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ERR_400_INVALID_FILTER", body.Code)
}

func TestSearchJSONBadPagination(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/keyframe/search", `{"page":-2,"size":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchPageBrowseMode(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/?page=1&size=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "get_img")
	assert.Contains(t, rec.Body.String(), "page 1 / 2", "ceil(6/4) collection pages")
}

func TestImageSearchEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/imgsearch?imgid=1&page=1&size=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page search.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.NotEmpty(t, page.Results)
	assert.Equal(t, uint64(2), page.Results[0].ID, "closest vector to key 1")
}

func TestImageSearchUnknownID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/imgsearch?imgid=999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageSearchMissingParam(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/imgsearch", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNeighborsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/neighbors?imgid=3&k=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []search.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ids := make([]uint64, len(body.Results))
	for i, r := range body.Results {
		ids[i] = r.ID
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
}

func TestNeighborsUnknown(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/neighbors?imgid=999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNeighborsKTooLarge(t *testing.T) {
	s, _ := newTestServer(t)

	// An absurd window must be rejected before any allocation.
	rec := doRequest(t, s, http.MethodGet, "/keyframe/neighbors?imgid=3&k=2000000000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObjectsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/objects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Objects []string `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"person"}, body.Objects)
}

func TestGetImageServesFile(t *testing.T) {
	s, dataRoot := newTestServer(t)

	dir := filepath.Join(dataRoot, "Keyframes_L01", "L01_V001")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	img := filepath.Join(dir, "000.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpegbytes"), 0o644))

	rec := doRequest(t, s, http.MethodGet, "/keyframe/get_img?fpath="+img, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpegbytes", rec.Body.String())
}

func TestGetImageMissingWithoutPlaceholder(t *testing.T) {
	s, dataRoot := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet,
		"/keyframe/get_img?fpath="+filepath.Join(dataRoot, "nope.jpg"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetImageOutsideDataRoot(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/keyframe/get_img?fpath=/etc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImagePlaceholderOnMiss(t *testing.T) {
	s, dataRoot := newTestServer(t)

	placeholder := filepath.Join(dataRoot, "placeholder.jpg")
	require.NoError(t, os.WriteFile(placeholder, []byte("placeholder"), 0o644))
	s.config.PlaceholderImage = placeholder

	rec := doRequest(t, s, http.MethodGet,
		"/keyframe/get_img?fpath="+filepath.Join(dataRoot, "missing.jpg"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "placeholder", rec.Body.String())
}
