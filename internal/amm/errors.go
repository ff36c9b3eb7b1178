package amm

import (
	fpmath "SwapLedger/internal/math"
	"errors"
)

var (
	// ErrInvalidReserves is returned when pricing against an empty pool
	ErrInvalidReserves = fpmath.ErrInvalidReserves

	ErrInvalidAssetAddress    = errors.New("invalid base asset address")
	ErrInvalidFee             = errors.New("invalid fee ratio")
	ErrAmountTooSmall         = errors.New("amount too small")
	ErrInsufficientBaseAmount = errors.New("insufficient base amount")
	ErrInvalidBurnAmount      = errors.New("invalid liquidity burn amount")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrZeroRecipient          = errors.New("zero recipient")
	ErrSamePool               = errors.New("route through the same pool")

	// Registry
	ErrInvalidAsset  = errors.New("invalid asset")
	ErrAlreadyExists = errors.New("pool already exists")
	ErrNotFound      = errors.New("pool not found")
)
