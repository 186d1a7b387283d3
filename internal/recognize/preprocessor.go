package recognize

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Preprocessor enhances slip photos before local OCR. Delivery slips are
// photographed in cabs under poor light, so contrast and sharpening matter
// more than resolution.
type Preprocessor struct{}

// NewPreprocessor creates a new image preprocessor
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// PreprocessImageFromBytes applies image enhancement filters
// Uses ImageMagick for: grayscale, contrast, denoise, sharpen
func (p *Preprocessor) PreprocessImageFromBytes(imageData []byte) ([]byte, error) {
	// Create temp files
	tmpDir := os.TempDir()
	inputFile := filepath.Join(tmpDir, fmt.Sprintf("slip_in_%d.jpg", os.Getpid()))
	outputFile := filepath.Join(tmpDir, fmt.Sprintf("slip_out_%d.jpg", os.Getpid()))

	// Write input image
	if err := os.WriteFile(inputFile, imageData, 0644); err != nil {
		return imageData, nil // Fallback to original
	}
	defer os.Remove(inputFile)
	defer os.Remove(outputFile)

	// Pipeline: resize (if too large) -> grayscale -> contrast -> denoise -> sharpen
	args := []string{
		inputFile,
		"-resize", "2000x2000>",
		"-colorspace", "Gray",
		"-normalize",
		"-contrast-stretch", "2%x1%",
		"-despeckle",
		"-sharpen", "0x1",
		"-unsharp", "0x0.5+0.5+0",
		"-quality", "95",
		outputFile,
	}

	cmd := magickCommand(args)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// If ImageMagick fails, return original image
		fmt.Printf("[Preprocessor] ImageMagick failed: %v - %s\n", err, stderr.String())
		return imageData, nil
	}

	processed, err := os.ReadFile(outputFile)
	if err != nil {
		return imageData, nil // Fallback to original
	}

	fmt.Printf("[Preprocessor] Image enhanced: %d bytes -> %d bytes\n", len(imageData), len(processed))
	return processed, nil
}

// PreprocessForHandwriting applies a more aggressive profile for the
// handwritten KM block at the document foot: adaptive threshold handles
// pencil strokes under uneven cab lighting.
func (p *Preprocessor) PreprocessForHandwriting(imageData []byte) ([]byte, error) {
	tmpDir := os.TempDir()
	inputFile := filepath.Join(tmpDir, fmt.Sprintf("hand_in_%d.jpg", os.Getpid()))
	outputFile := filepath.Join(tmpDir, fmt.Sprintf("hand_out_%d.jpg", os.Getpid()))

	if err := os.WriteFile(inputFile, imageData, 0644); err != nil {
		return imageData, nil
	}
	defer os.Remove(inputFile)
	defer os.Remove(outputFile)

	args := []string{
		inputFile,
		"-resize", "2500x2500>",
		"-colorspace", "Gray",
		"-lat", "50x50+10%",
		"-contrast-stretch", "5%x2%",
		"-despeckle",
		"-despeckle",
		"-sharpen", "0x2",
		"-quality", "95",
		outputFile,
	}

	if err := magickCommand(args).Run(); err != nil {
		// Fallback to standard preprocessing
		return p.PreprocessImageFromBytes(imageData)
	}

	processed, err := os.ReadFile(outputFile)
	if err != nil {
		return p.PreprocessImageFromBytes(imageData)
	}

	fmt.Printf("[Preprocessor] Handwriting-enhanced: %d bytes -> %d bytes\n", len(imageData), len(processed))
	return processed, nil
}

// magickCommand tries 'magick' first (ImageMagick 7), falling back to
// 'convert' (ImageMagick 6).
func magickCommand(args []string) *exec.Cmd {
	if _, err := exec.LookPath("magick"); err == nil {
		return exec.Command("magick", args...)
	}
	return exec.Command("convert", args...)
}
