package e2e

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// makePNG encodes a small valid PNG whose pixels depend on seed, so every
// fixture has distinct bytes. Content sniffing sees a genuine image/png.
func makePNG(seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := uint8((seed*31 + y*4 + x) % 256)
			img.Set(x, y, color.RGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("encode fixture png: %v", err))
	}
	return buf.Bytes()
}

func imageKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fixture is one corpus entry: an image and the text its recognition yields.
type fixture struct {
	Name       string
	Image      []byte
	Text       string
	Confidence float64
	// Marker is a term that appears only in this fixture's text.
	Marker string
}

// buildCorpus returns fixtures whose texts share common vocabulary but each
// carry one unique marker term, so search precision is checkable.
func buildCorpus() []fixture {
	entries := []struct {
		name, text, marker string
		confidence         float64
	}{
		{"receipt.png", "Grocery receipt zucchini and bread total 12.50", "zucchini", 91},
		{"invoice.png", "Invoice for consulting services gadolinium ref 7781", "gadolinium", 88.5},
		{"letter.png", "Dear committee the xylophone budget was approved", "xylophone", 79},
		{"menu.png", "Lunch menu soup of the day quixotic salad and bread", "quixotic", 85},
		{"ticket.png", "Parking ticket issued at harbor the vermilion zone", "vermilion", 93.5},
	}
	corpus := make([]fixture, len(entries))
	for i, e := range entries {
		corpus[i] = fixture{
			Name:       e.name,
			Image:      makePNG(i + 1),
			Text:       e.text,
			Confidence: e.confidence,
			Marker:     e.marker,
		}
	}
	return corpus
}
