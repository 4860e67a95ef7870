package api

import (
	"net/http"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/pkg/errors"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrDuplicateOperator):
		return http.StatusConflict
	case errors.Is(err, types.ErrUnknownOperator):
		return http.StatusNotFound
	case errors.Is(err, types.ErrBelowMinimumStake),
		errors.Is(err, types.ErrInsufficientStake),
		errors.Is(err, types.ErrNegativeAmount),
		errors.Is(err, types.ErrAmountOverflow),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
