// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestFitScalesDown(t *testing.T) {
	res, err := Fit(pngBytes(t, 800, 400), 200)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Width != 200 || res.Height != 100 {
		t.Errorf("size = %dx%d, want 200x100", res.Width, res.Height)
	}
	if res.Format != "png" {
		t.Errorf("Format = %q, want png", res.Format)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("encoded size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestFitDoesNotUpscale(t *testing.T) {
	res, err := Fit(pngBytes(t, 64, 48), 512)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Width != 64 || res.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", res.Width, res.Height)
	}
}

func TestFitDefaultWidth(t *testing.T) {
	res, err := Fit(pngBytes(t, IconWidth+100, 10), 0)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Width != IconWidth {
		t.Errorf("Width = %d, want %d", res.Width, IconWidth)
	}
}

func TestFitRejectsGarbage(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("not an image")} {
		if _, err := Fit(in, 100); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Fit(%q) err = %v, want ErrUnsupported", in, err)
		}
	}
}

// pngHeader returns just a PNG signature and IHDR chunk claiming w x h.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestFitRejectsPixelBomb(t *testing.T) {
	if _, err := Fit(pngHeader(20000, 20000), 100); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}
