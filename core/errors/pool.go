package errors

import (
	stderrors "errors"
	"fmt"
)

// Capacity failures share a common root so callers can match any of them with
// errors.Is(err, ErrCapacityExceeded).
var (
	ErrCapacityExceeded          = stderrors.New("pool: capacity exceeded")
	ErrDebtLimitExceeded         = fmt.Errorf("%w: debt limit exceeded", ErrCapacityExceeded)
	ErrBorrowingAboveU2Forbidden = fmt.Errorf("%w: borrowing above second kink forbidden", ErrCapacityExceeded)
	ErrInsufficientLiquidity     = fmt.Errorf("%w: insufficient liquidity", ErrCapacityExceeded)
)

var (
	ErrInsufficientShares   = stderrors.New("pool: insufficient shares")
	ErrNoDebt               = stderrors.New("pool: borrower has no debt")
	ErrCallerNotQuotaKeeper = stderrors.New("pool: caller is not the quota keeper")
	ErrIncorrectParameter   = stderrors.New("incorrect parameter")
	ErrInvalidAmount        = stderrors.New("invalid amount")
	ErrZeroReceiver         = stderrors.New("zero receiver")
	ErrZeroAddress          = stderrors.New("zero address")
	ErrUnauthorized         = stderrors.New("unauthorized")
	ErrPaused               = stderrors.New("module paused")
)

var (
	ErrOutOfBounds          = stderrors.New("quota: out of bounds")
	ErrAssetNotQuoted       = stderrors.New("quota: asset not quoted")
	ErrAssetAlreadyAdded    = stderrors.New("quota: asset already added")
	ErrCallerNotRateKeeper  = stderrors.New("quota: caller is not the rate keeper")
	ErrInsufficientVotes    = stderrors.New("ratekeeper: insufficient votes")
	ErrInsufficientStake    = stderrors.New("ratekeeper: insufficient stake")
	ErrInvalidRate          = stderrors.New("ratekeeper: invalid rate")
	ErrUnsupportedOperation = stderrors.New("ratekeeper: operation not supported by keeper")
)
