package protocol

import "net/http"

const (
	// Body did not parse or failed the schema.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	// No free plot within the search limit.
	ErrNoResource = "E_NO_RESOURCE"
	// Storage did not answer in time.
	ErrTimeout     = "E_TIMEOUT"
	ErrUnavailable = "E_UNAVAILABLE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]int{
	ErrProtoBadRequest: http.StatusBadRequest,
	ErrBadRequest:      http.StatusBadRequest,
	ErrNotFound:        http.StatusNotFound,
	ErrNoResource:      http.StatusConflict,
	ErrTimeout:         http.StatusGatewayTimeout,
	ErrUnavailable:     http.StatusServiceUnavailable,
	ErrInternal:        http.StatusInternalServerError,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// HTTPStatus maps a code to its response status; unknown codes are 500.
func HTTPStatus(code string) int {
	if s, ok := knownCodes[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
