package domain

import "errors"

// Validation errors shared by domain constructors.
var (
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrInvalidRange     = errors.New("high must be >= low")
	ErrInvalidVolume    = errors.New("volume must be non-negative")
	ErrInvalidBoundary  = errors.New("top must be strictly greater than bottom")
	ErrInvalidDirection = errors.New("direction must be bullish or bearish")
	ErrInvalidSide      = errors.New("side must be long or short")
	ErrInvalidSymbol    = errors.New("symbol must be a non-empty uppercase token")
	ErrInvalidSize      = errors.New("size must be positive")
	ErrInvalidStops     = errors.New("stop loss and take profit must bracket entry for the side")
)
