// Package ocr defines the recognition engine contract and its Tesseract implementation.
//
// The engine is treated as an opaque capability: image bytes go in, extracted
// text plus a 0-100 confidence score come out, or the call fails as a whole.
// Callers must not assume the call returns quickly.
package ocr

import "context"

// Input is a single image submitted for recognition.
type Input struct {
	// Image is the encoded image payload (PNG, JPEG, ...).
	Image []byte
	// MimeType declares the image content type (e.g. "image/png").
	MimeType string
	// Languages is a list of trained-data hints (e.g. "eng", "deu").
	// Empty means the engine default.
	Languages []string
}

// Result is the outcome of a successful recognition.
type Result struct {
	// Text is the linearized text extracted from the image.
	Text string
	// Confidence is the engine's quality estimate on a 0-100 scale.
	Confidence float64
}

// Engine is the recognition provider contract: one image in, one result out.
// Implementations report any internal problem as a single error; partial
// results are never returned.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// clampConfidence forces a score into the 0-100 range.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
