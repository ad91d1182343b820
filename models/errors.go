// Error taxonomy for the core. Input-control outcomes (clarification, domain
// rejection) are not errors; they travel through AskResult. Everything here is
// either a transient backend failure, a data error or a logic error, plus the
// HTTP mapping consumed by the API layer.

package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPerfStoreEmpty means the performance query matched zero rows
	ErrPerfStoreEmpty = errors.New("perfstore: no rows match")
	// ErrPerfStoreBackend wraps transport failures of the relational store
	ErrPerfStoreBackend = errors.New("perfstore: backend failure")
	// ErrVectorStore wraps vector store transport failures
	ErrVectorStore = errors.New("vectorstore: backend failure")
	// ErrEmbedding wraps embedding endpoint failures
	ErrEmbedding = errors.New("embedding: request failed")
	// ErrProvider wraps completion provider failures
	ErrProvider = errors.New("provider: request failed")
	// ErrSource wraps an external source adapter failure
	ErrSource = errors.New("source: request failed")
	// ErrParse means the provider or an adapter returned malformed data;
	// never retried, callers fall back to rule-based paths.
	ErrParse = errors.New("parse: malformed response")
	// ErrDependencyUnsatisfied means a DAG step referenced a missing result
	ErrDependencyUnsatisfied = errors.New("orchestrator: dependency unsatisfied")
	// ErrUnknownStepType means a DAG step carried an unregistered type
	ErrUnknownStepType = errors.New("orchestrator: unknown step type")
)

// BackendError attaches the failing component to a transient error
type BackendError struct {
	Component string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error is a transient backend failure
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrParse),
		errors.Is(err, ErrPerfStoreEmpty),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrPerfStoreBackend),
		errors.Is(err, ErrVectorStore),
		errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrProvider),
		errors.Is(err, ErrSource):
		return true
	}
	return false
}

// HTTPStatus maps a core error to the status the API layer should emit.
// The 499 value follows the de-facto client-closed-request convention.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, ErrPerfStoreEmpty):
		return http.StatusNotFound
	case errors.Is(err, ErrPerfStoreBackend),
		errors.Is(err, ErrVectorStore),
		errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrProvider),
		errors.Is(err, ErrSource):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
