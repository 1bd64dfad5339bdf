package services

import "errors"

var (
	// ErrInvalidInput marks malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidDocument marks a submitted document that cannot be read as a PDF.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrDependency marks a failure of the encoder, vector store or text generator.
	ErrDependency = errors.New("dependency failure")
	// ErrDimensionMismatch marks an embedding whose length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
