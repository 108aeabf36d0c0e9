package orchestrator

import (
	"errors"
	"net/http"

	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
)

// ErrValidation is returned before any external call is made.
var ErrValidation = errors.New("invalid verification request")

// ErrOrderNotStored accompanies a success result: the processor confirmed the
// payment but the order row could not be written.
var ErrOrderNotStored = errors.New("payment confirmed but order not stored")

// HTTPStatus maps a pipeline error to the caller-facing status code.
func HTTPStatus(err error) int {
	var rejected *gateway.RejectedError
	switch {
	case err == nil, errors.Is(err, ErrOrderNotStored):
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.As(err, &rejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
