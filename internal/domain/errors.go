package domain

import "errors"

var (
	// ErrNotFound means the entity has no qualifying observations, or its
	// observations do not span a single usable interval.
	ErrNotFound = errors.New("entity not found")

	// ErrNoRecommendation means no model is cached and training on demand
	// did not produce one.
	ErrNoRecommendation = errors.New("no recommendation available")
)
