package domain

import "errors"

var (
	// ErrModelUnavailable signals that the completion service is unreachable or timed out.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrMalformedOutput signals model output that is not a parseable document.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrIncompleteQuery signals model output missing required query fields or with wrong payload shape.
	ErrIncompleteQuery = errors.New("incomplete query")
	// ErrUnsupportedOperation signals an operation outside the fixed operation set.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrUnauthorizedCollection signals a query against a collection not in the allow-list.
	ErrUnauthorizedCollection = errors.New("unauthorized collection")
	// ErrUnauthorizedOperation signals an operation not in the allow-list.
	ErrUnauthorizedOperation = errors.New("unauthorized operation")
	// ErrUnsafePayload signals a payload containing a forbidden operator or excessive nesting.
	ErrUnsafePayload = errors.New("unsafe payload")

	// ErrBackendUnavailable signals that the data store is unreachable or timed out.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendRejected signals a query the data store itself refused.
	ErrBackendRejected = errors.New("backend rejected query")

	// ErrTimeout signals that the end-to-end request deadline expired.
	ErrTimeout = errors.New("request deadline exceeded")

	// ErrInvalidInput signals caller input rejected before the pipeline runs.
	ErrInvalidInput = errors.New("invalid input")
)
