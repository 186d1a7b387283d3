package recognize

import (
	"context"
	"regexp"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

type imagePreparer interface {
	PreprocessImageFromBytes([]byte) ([]byte, error)
	PreprocessForHandwriting([]byte) ([]byte, error)
}

type textEngine interface {
	Recognize(ctx context.Context, image []byte) (*models.RawResult, error)
}

// LocalEngine couples the image preprocessor with the on-device OCR
// engine. Raw cab photos go in, recognized text comes out.
type LocalEngine struct {
	pre    imagePreparer
	engine textEngine
}

// NewLocalEngine creates the preprocessed local recognition engine.
func NewLocalEngine(language string) *LocalEngine {
	return &LocalEngine{
		pre:    NewPreprocessor(),
		engine: NewTesseractEngine(language),
	}
}

// Name returns the provider name
func (l *LocalEngine) Name() string {
	return "local"
}

// kmRunRe spots odometer-sized digit runs in recognized text.
var kmRunRe = regexp.MustCompile(`\b\d{5,7}\b`)

// Recognize preprocesses the image and runs OCR over it. When the first
// pass finds no odometer-sized number, a second pass with the
// handwriting profile is appended: the KM block at the document foot is
// pencilled in and often survives only the thresholded image.
func (l *LocalEngine) Recognize(ctx context.Context, image []byte) (*models.RawResult, error) {
	processed, err := l.pre.PreprocessImageFromBytes(image)
	if err != nil {
		processed = image
	}
	result, err := l.engine.Recognize(ctx, processed)
	if err != nil {
		return nil, err
	}
	if kmRunRe.MatchString(result.Text) {
		return result, nil
	}

	hard, err := l.pre.PreprocessForHandwriting(image)
	if err != nil {
		return result, nil
	}
	second, err := l.engine.Recognize(ctx, hard)
	if err != nil || !kmRunRe.MatchString(second.Text) {
		return result, nil
	}

	result.Text = result.Text + "\n" + second.Text
	return result, nil
}
