// Package errors provides structured error handling for frameseek.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where XXX mirrors the
// HTTP status the error maps to at the service boundary:
//   - 400: malformed requests, rejected before any I/O
//   - 404: unknown keyframe ids
//   - 499: client disconnect or request deadline
//   - 500: invariant violations (programmer errors)
//   - 503: downstream stores unreachable with no usable channel
package errors

import "net/http"

// Kind classifies errors for propagation decisions.
type Kind string

const (
	// KindBadRequest indicates a malformed request (unparseable filters,
	// out-of-range page or size). Never retryable, rejected before I/O.
	KindBadRequest Kind = "BAD_REQUEST"
	// KindNotFound indicates a lookup for an id that is not indexed.
	KindNotFound Kind = "NOT_FOUND"
	// KindUnavailable indicates all active downstream channels failed.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindCancelled indicates the request deadline elapsed or the client
	// disconnected. Surfaced as a closed connection, no body.
	KindCancelled Kind = "CANCELLED"
	// KindInternal indicates an invariant violation. Logged with full context.
	KindInternal Kind = "INTERNAL"
)

// Error codes organized by kind.
const (
	ErrCodeBadRequest    = "ERR_400_BAD_REQUEST"
	ErrCodeInvalidFilter = "ERR_400_INVALID_FILTER"
	ErrCodeInvalidPage   = "ERR_400_INVALID_PAGE"

	ErrCodeNotFound = "ERR_404_NOT_FOUND"

	ErrCodeCancelled = "ERR_499_CANCELLED"

	ErrCodeInternal = "ERR_500_INTERNAL"

	ErrCodeUnavailable = "ERR_503_UNAVAILABLE"
)

// kindFromCode extracts the kind from an error code.
func kindFromCode(code string) Kind {
	if len(code) < 7 {
		return KindInternal
	}
	switch code[4:7] {
	case "400":
		return KindBadRequest
	case "404":
		return KindNotFound
	case "499":
		return KindCancelled
	case "503":
		return KindUnavailable
	default:
		return KindInternal
	}
}

// statusFromKind maps a kind to the HTTP status the boundary reports.
func statusFromKind(k Kind) int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCancelled:
		// nginx convention for "client closed request"; the handler closes
		// the connection without writing a body.
		return 499
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
