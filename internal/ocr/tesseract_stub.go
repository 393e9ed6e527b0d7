//go:build !cgo
// +build !cgo

package ocr

import (
	"context"
	"errors"
)

// TesseractEngine stub type when built without CGO (see tesseract.go for the
// real implementation).
type TesseractEngine struct{}

// NewTesseractEngine returns an engine whose calls always fail when built
// without CGO (Tesseract not available).
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{}
}

// Name returns the engine identifier.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize always fails; Tesseract requires CGO.
func (e *TesseractEngine) Recognize(_ context.Context, _ Input) (Result, error) {
	return Result{}, errors.New("tesseract requires CGO; build with CGO_ENABLED=1 and the tesseract library")
}
