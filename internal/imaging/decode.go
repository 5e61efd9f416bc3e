// Package imaging decodes uploaded image bytes and turns them into model input tensors.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned (wrapped) when bytes cannot be decoded into an image.
var ErrDecode = errors.New("invalid image")

// Format is a detected image container format.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

var signatures = []struct {
	format Format
	magic  []byte
}{
	{FormatJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{FormatPNG, []byte{0x89, 'P', 'N', 'G'}},
	{FormatGIF, []byte("GIF8")},
	{FormatBMP, []byte("BM")},
	{FormatTIFF, []byte{'I', 'I', 0x2A, 0x00}},
	{FormatTIFF, []byte{'M', 'M', 0x00, 0x2A}},
}

// Image is a decoded image converted to RGBA.
type Image struct {
	RGBA   *image.RGBA
	Width  int
	Height int
	Format Format
}

// DetectFormat identifies the container format from the leading magic bytes.
func DetectFormat(data []byte) Format {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return FormatWebP
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	return FormatUnknown
}

// Limits bounds the decoded size of an upload. Zero fields disable the check.
type Limits struct {
	MaxPixels      int64
	MaxAspectRatio float64
}

// DefaultLimits is applied by Decode.
var DefaultLimits = Limits{MaxPixels: 50_000_000, MaxAspectRatio: 50}

// Decode decodes data into an RGBA image using DefaultLimits.
func Decode(data []byte) (*Image, error) {
	return DecodeWithLimits(data, DefaultLimits)
}

// DecodeWithLimits decodes data into an RGBA image. The header is checked
// against limits before any pixel data is decoded. Empty, unrecognized,
// corrupt or oversized input yields an error wrapping ErrDecode.
func DecodeWithLimits(data []byte, limits Limits) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: unsupported format", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := limits.check(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out := FromImage(img)
	if out.Width == 0 || out.Height == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	out.Format = format
	return out, nil
}

func (l Limits) check(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	if l.MaxPixels > 0 && int64(w)*int64(h) > l.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, w, h, l.MaxPixels)
	}
	if l.MaxAspectRatio > 0 {
		long, short := max(w, h), min(w, h)
		if float64(long)/float64(short) > l.MaxAspectRatio {
			return fmt.Errorf("%w: aspect ratio of %dx%d exceeds %g", ErrDecode, w, h, l.MaxAspectRatio)
		}
	}
	return nil
}

// FromImage wraps an already decoded image, copying it to an origin-anchored RGBA.
func FromImage(img image.Image) *Image {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	return &Image{RGBA: rgba, Width: b.Dx(), Height: b.Dy(), Format: FormatUnknown}
}

// PNG re-encodes the image as PNG.
func (i *Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, i.RGBA); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// toRGBA converts to *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
