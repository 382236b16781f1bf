package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{ErrCodeBadRequest, KindBadRequest},
		{ErrCodeInvalidFilter, KindBadRequest},
		{ErrCodeInvalidPage, KindBadRequest},
		{ErrCodeNotFound, KindNotFound},
		{ErrCodeCancelled, KindCancelled},
		{ErrCodeUnavailable, KindUnavailable},
		{ErrCodeInternal, KindInternal},
		{"bogus", KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, kindFromCode(tt.code))
		})
	}
}

func TestErrorChain(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Unavailable("metadata store unreachable", cause)

	assert.Equal(t, "[ERR_503_UNAVAILABLE] metadata store unreachable", err.Error())
	assert.True(t, stderrors.Is(err, Unavailable("", nil)))
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestWithDetail(t *testing.T) {
	err := NotFound("keyframe not indexed", nil).
		WithDetail("imgid", "1234").
		WithDetail("store", "vector")

	require.NotNil(t, err.Details)
	assert.Equal(t, "1234", err.Details["imgid"])
	assert.Equal(t, "vector", err.Details["store"])
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(BadRequest("bad", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("missing", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Unavailable("down", nil)))
	assert.Equal(t, 499, HTTPStatus(Cancelled("gone", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal("bug", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("plain")))
}

func TestHTTPStatusWrapped(t *testing.T) {
	wrapped := fmt.Errorf("channel: %w", NotFound("missing", nil))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.True(t, IsNotFound(wrapped))
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := FromContext(cancelled)
	require.NotNil(t, err)
	assert.Equal(t, KindCancelled, err.Kind)

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	err = FromContext(expired)
	require.NotNil(t, err)
	assert.True(t, IsCancelled(err))
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
}
