package domain

import "errors"

var (
	// ErrNotReady indicates the pipeline has no trained models loaded
	ErrNotReady = errors.New("pipeline not ready")

	// ErrNotFound indicates a series or artifact does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid request input
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration indicates the training data cannot produce a model
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDataSource indicates the training source could not be read
	ErrDataSource = errors.New("data source unavailable")

	// ErrTrainingInProgress indicates another training run holds the lock
	ErrTrainingInProgress = errors.New("training already in progress")
)
