// imageprocessor.go - Image preprocessing for OCR and dataset encoding

package processor

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// PreprocessMode defines the level of image preprocessing
type PreprocessMode int

const (
	// FastMode: light processing, speed priority (product photos)
	FastMode PreprocessMode = iota
	// BalancedMode: standard processing for general use
	BalancedMode
	// HighQualityMode: adaptive processing driven by a quality estimate (invoices)
	HighQualityMode
)

// DatasetJPEGQuality is the quality training images are stored at.
const DatasetJPEGQuality = 92

// ParsePreprocessMode maps a config value to a mode; unknown values are balanced.
func ParsePreprocessMode(s string) PreprocessMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return FastMode
	case "high", "high_quality", "highquality":
		return HighQualityMode
	default:
		return BalancedMode
	}
}

func (m PreprocessMode) String() string {
	switch m {
	case FastMode:
		return "fast"
	case HighQualityMode:
		return "high_quality"
	default:
		return "balanced"
	}
}

// DetectMIME sniffs the content type, falling back to the file extension.
func DetectMIME(data []byte, filename string) string {
	sniffed := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(sniffed, "image/"), sniffed == "application/pdf":
		return sniffed
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// PreprocessImage enhances an uploaded image for OCR. PDFs pass through
// untouched. maxDimension caps the longest side; zero uses the mode default.
func PreprocessImage(data []byte, mimeType string, mode PreprocessMode, maxDimension int) ([]byte, string, error) {
	if mimeType == "application/pdf" {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	if maxDimension <= 0 {
		switch mode {
		case FastMode:
			maxDimension = 1500
		case HighQualityMode:
			maxDimension = 2500
		default:
			maxDimension = 2000
		}
	}
	img = fitWithin(img, maxDimension)

	switch mode {
	case FastMode:
		img = imaging.Sharpen(img, 1.5)
		img = imaging.AdjustContrast(img, 25)
		img = imaging.Grayscale(img)

	case BalancedMode:
		img = applyStandardEnhancement(img)

	case HighQualityMode:
		qualityScore := analyzeImageQuality(img)
		switch {
		case qualityScore < 50:
			img = applyAggressiveEnhancement(img)
		case qualityScore < 75:
			img = applyStandardEnhancement(img)
		default:
			img = applyLightEnhancement(img)
		}
		// extra pass for small print
		img = imaging.Sharpen(img, 1.0)
	}

	var buf bytes.Buffer
	if mimeType == "image/png" {
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		mimeType = "image/jpeg"
		quality := 90
		if mode == HighQualityMode {
			quality = 98
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}

	return buf.Bytes(), mimeType, nil
}

// EncodeDatasetJPEG normalizes a product photo for the training set: EXIF
// orientation applied, RGB, JPEG at DatasetJPEGQuality.
func EncodeDatasetJPEG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// flatten alpha onto white so transparent PNGs don't turn black
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White)
	flat := imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(DatasetJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode dataset image: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(img image.Image, maxDimension int) image.Image {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

// analyzeImageQuality analyzes image and returns quality score (0-100)
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	minBrightness, maxBrightness := 255.0, 0.0
	pixelCount := 0

	// every 10th pixel
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			minBrightness = math.Min(minBrightness, brightness)
			maxBrightness = math.Max(maxBrightness, brightness)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	// ideal: avgBrightness = 128, contrast = 200+
	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	return brightnessScore*0.4 + contrastScore*0.6
}

// applyLightEnhancement for good quality images
func applyLightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	return imaging.AdjustGamma(result, 1.05)
}

// applyStandardEnhancement for medium quality images
func applyStandardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	return imaging.AdjustGamma(result, 1.15)
}

// applyAggressiveEnhancement for poor quality images
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	// blur + sharpen removes speckle noise
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	return imaging.AdjustContrast(result, 20)
}
