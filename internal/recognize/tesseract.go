package recognize

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

// TesseractEngine is the local on-device text recognition engine. It has
// no structured understanding of the document; it returns a raw text block
// with an estimated quality score for the heuristic extractor to work on.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates a local OCR engine
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng" // Default to English
	}
	return &TesseractEngine{
		language: language,
	}
}

// Name returns the provider name
func (t *TesseractEngine) Name() string {
	return "tesseract"
}

// Recognize performs OCR on the image bytes
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte) (*models.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return &models.RawResult{
		Text:       text,
		Confidence: textQualityConfidence(text),
		Source:     "local",
	}, nil
}

// textQualityConfidence estimates recognition quality (0-100) from simple
// text statistics. Tesseract word confidences need HOCR parsing; this
// coarse signal is enough to rank fallback output.
func textQualityConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	confidence := 50.0

	if len(text) > 200 {
		confidence += 10
	}
	if len(text) > 1000 {
		confidence += 10
	}
	if len(strings.Fields(text)) > 40 {
		confidence += 10
	}

	// Reasonable letter share separates prose from line noise.
	alphaCount := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	alphaRatio := float64(alphaCount) / float64(len(text))
	if alphaRatio > 0.4 && alphaRatio < 0.9 {
		confidence += 10
	}

	if confidence > 85 {
		confidence = 85
	}
	return confidence
}
