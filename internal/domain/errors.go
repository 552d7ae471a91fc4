package domain

import "errors"

var (
	// ErrInvalidArgument marks a caller mistake such as a bad keyword count.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoData is returned when an upstream source has nothing for the query.
	ErrNoData = errors.New("no data")
	// ErrNotFound is returned when a symbol or id cannot be resolved.
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("network error")
	ErrParse    = errors.New("parse error")
)
