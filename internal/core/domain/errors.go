package domain

import "errors"

var (
	// ErrNotFound is returned when a requested alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidBounds is returned for inverted or out-of-range bounding boxes.
	ErrInvalidBounds = errors.New("invalid bounds")

	// ErrInvalidWindow is returned for an unknown recency window.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidCategory is returned for an unknown alert category.
	ErrInvalidCategory = errors.New("invalid category")
)
