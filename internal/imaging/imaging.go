// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging normalises uploaded icons before they go to storage:
// the image is decoded (JPEG, PNG, GIF or WebP), scaled down to a maximum
// width with aspect ratio kept, and re-encoded as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	// MaxPixels rejects decompression bombs before the full decode.
	MaxPixels = 40_000_000

	// IconWidth is the default maximum width of a stored icon.
	IconWidth = 512

	// Quality is the JPEG quality of re-encoded images.
	Quality = 85

	// ContentType is the MIME type of every processed image.
	ContentType = "image/jpeg"
)

var (
	// ErrUnsupported is returned for data that is not a decodable image.
	ErrUnsupported = errors.New("unsupported image format")

	// ErrTooLarge is returned when the pixel count exceeds MaxPixels.
	ErrTooLarge = errors.New("image too large")
)

// Result is a processed image ready for upload.
type Result struct {
	Data   []byte
	Width  int
	Height int
	Format string // format of the source image
}

// Fit scales src down so its width is at most maxWidth and encodes it as
// JPEG. Smaller images are re-encoded at their own size, never upscaled.
func Fit(src []byte, maxWidth int) (*Result, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrUnsupported)
	}
	if maxWidth <= 0 {
		maxWidth = IconWidth
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > maxWidth {
		height = max(1, int(float64(height)*float64(maxWidth)/float64(width)))
		width = maxWidth
	}

	// JPEG has no alpha; flatten onto white first.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Result{Data: buf.Bytes(), Width: width, Height: height, Format: format}, nil
}
