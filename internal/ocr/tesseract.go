//go:build cgo
// +build cgo

package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine implements Engine using the gosseract client. It requires
// CGO and the Tesseract shared library.
//
// Each Recognize call creates its own client; gosseract clients are not safe
// for concurrent use, and per-call clients let independent documents be
// recognized in parallel by the worker pool.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed recognition engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

// Name returns the engine identifier.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image. The blocking Tesseract call runs
// in its own goroutine so that context cancellation and deadlines are
// honored; on expiry the abandoned recognition finishes in the background
// and its result is discarded.
func (e *TesseractEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if len(in.Image) == 0 {
		return Result{}, errors.New("empty image")
	}

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := e.recognize(in)
		ch <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case o := <-ch:
		return o.res, o.err
	}
}

func (e *TesseractEngine) recognize(in Input) (Result, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return Result{}, fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}

	return Result{
		Text:       strings.TrimSpace(text),
		Confidence: clampConfidence(wordConfidence(c)),
	}, nil
}

// wordConfidence averages per-word confidences, which gosseract reports on a
// 0-100 scale. Zero words yields zero confidence.
func wordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
