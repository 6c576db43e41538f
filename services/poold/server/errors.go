package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	coreerrors "creditpool/core/errors"
	"creditpool/native/market"
	"creditpool/state/ledger"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps ledger errors onto HTTP status codes. Anything unrecognised
// is an internal error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, coreerrors.ErrIncorrectParameter),
		errors.Is(err, coreerrors.ErrInvalidAmount),
		errors.Is(err, coreerrors.ErrZeroReceiver),
		errors.Is(err, coreerrors.ErrZeroAddress),
		errors.Is(err, coreerrors.ErrOutOfBounds),
		errors.Is(err, coreerrors.ErrInvalidRate),
		errors.Is(err, market.ErrUnknownModule):
		return http.StatusBadRequest
	case errors.Is(err, coreerrors.ErrUnauthorized),
		errors.Is(err, coreerrors.ErrCallerNotQuotaKeeper),
		errors.Is(err, coreerrors.ErrCallerNotRateKeeper):
		return http.StatusForbidden
	case errors.Is(err, coreerrors.ErrAssetNotQuoted),
		errors.Is(err, ledger.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, coreerrors.ErrPaused),
		errors.Is(err, coreerrors.ErrAssetAlreadyAdded),
		errors.Is(err, coreerrors.ErrUnsupportedOperation):
		return http.StatusConflict
	case errors.Is(err, coreerrors.ErrCapacityExceeded),
		errors.Is(err, coreerrors.ErrInsufficientShares),
		errors.Is(err, coreerrors.ErrInsufficientVotes),
		errors.Is(err, coreerrors.ErrInsufficientStake),
		errors.Is(err, coreerrors.ErrNoDebt):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
