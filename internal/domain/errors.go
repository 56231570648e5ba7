package domain

import "errors"

// Failure taxonomy shared by the schema, model, flow and action layers.
var (
	// ErrSchemaViolation means model output did not match the transaction schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrServiceUnavailable means the generative model service failed or was unreachable.
	ErrServiceUnavailable = errors.New("model service unavailable")
	// ErrMalformedOutput means the model replied with something that is not parseable data.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrMalformedInput means the caller supplied input that was rejected before any model call.
	ErrMalformedInput = errors.New("malformed input")
	// ErrInsufficientData means there is nothing to analyze.
	ErrInsufficientData = errors.New("insufficient data")

	ErrExtractionFailed = errors.New("extraction failed")
	ErrInsightFailed    = errors.New("insight generation failed")
	ErrChatFailed       = errors.New("chat failed")
)
