package ocr

import (
	"context"
	"sync/atomic"
)

// MockEngine is a deterministic engine for tests. It returns a fixed result
// (or a fixed error) and counts how many times it was invoked.
type MockEngine struct {
	// Text and Confidence form the result returned on success.
	Text       string
	Confidence float64
	// Err, when non-nil, is returned instead of a result.
	Err error
	// Delay, when non-nil, is waited on before responding; close it to
	// release in-flight calls. Lets tests observe the processing status.
	Delay chan struct{}

	calls atomic.Int64
}

// NewMockEngine returns an engine that always succeeds with the given result.
func NewMockEngine(text string, confidence float64) *MockEngine {
	return &MockEngine{Text: text, Confidence: confidence}
}

// Name returns the engine identifier.
func (e *MockEngine) Name() string { return "mock" }

// Recognize returns the configured result or error.
func (e *MockEngine) Recognize(ctx context.Context, _ Input) (Result, error) {
	e.calls.Add(1)
	if e.Delay != nil {
		select {
		case <-e.Delay:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if e.Err != nil {
		return Result{}, e.Err
	}
	return Result{Text: e.Text, Confidence: clampConfidence(e.Confidence)}, nil
}

// Calls returns how many times Recognize was invoked.
func (e *MockEngine) Calls() int64 {
	return e.calls.Load()
}
