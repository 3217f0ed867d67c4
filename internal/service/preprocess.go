package service

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/toothsense-analysis-server/internal/domain"
)

// sniffContentType returns the image content type of img, preferring what
// the bytes say over what the client declared. ok is false when neither
// identifies an image.
func sniffContentType(img domain.Image) (string, bool) {
	sniffed := http.DetectContentType(img.Data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, true
	}
	declared := strings.ToLower(strings.TrimSpace(img.ContentType))
	if sniffed == "application/octet-stream" && strings.HasPrefix(declared, "image/") {
		return declared, true
	}
	return sniffed, false
}

// Downscale fits img within maxDim x maxDim, keeping its format. Images that
// are already small enough are returned unchanged with resized false.
func Downscale(img domain.Image, maxDim int) (domain.Image, bool, error) {
	if maxDim <= 0 {
		return img, false, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return img, false, fmt.Errorf("image decode failed: %w", err)
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return img, false, nil
	}

	target, err := imaging.FormatFromExtension(format)
	if err != nil {
		return img, false, fmt.Errorf("unsupported image format %s: %w", format, err)
	}

	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return img, false, fmt.Errorf("image decode failed: %w", err)
	}

	fitted := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, target, imaging.JPEGQuality(90)); err != nil {
		return img, false, fmt.Errorf("image encode failed: %w", err)
	}

	return domain.Image{
		Data:        buf.Bytes(),
		Filename:    img.Filename,
		ContentType: "image/" + format,
	}, true, nil
}
