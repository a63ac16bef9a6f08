package domain

import "errors"

var (
	ErrMissingMarket = errors.New("order request: missing market id")
	ErrBadSide       = errors.New("order request: side must be BUY or SELL")
	ErrBadKind       = errors.New("order request: kind must be LIMIT or MARKET")
	ErrBadPrice      = errors.New("order request: limit price must be positive")
	ErrBadQuantity   = errors.New("order request: quantity must be positive")
)
