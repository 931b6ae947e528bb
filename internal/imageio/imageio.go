// Package imageio reads and writes still images for the command line and the HTTP service.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/term"
)

// PipeName selects stdin or stdout instead of a file.
const PipeName = "-"

// ErrUnsupportedFormat reports an output extension no encoder handles.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is an output encoding.
type Format int

const (
	JPEG Format = iota
	PNG
	GIF
	BMP
	TIFF
	WEBP
)

var formatNames = map[Format]string{
	JPEG: "jpeg", PNG: "png", GIF: "gif", BMP: "bmp", TIFF: "tiff", WEBP: "webp",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// FormatFromPath picks the encoder from the file extension. The pipe name encodes as JPEG.
func FormatFromPath(path string) (Format, error) {
	if path == PipeName {
		return JPEG, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".webp" {
		return WEBP, nil
	}
	f, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	switch f {
	case imaging.JPEG:
		return JPEG, nil
	case imaging.PNG:
		return PNG, nil
	case imaging.GIF:
		return GIF, nil
	case imaging.BMP:
		return BMP, nil
	case imaging.TIFF:
		return TIFF, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Decode reads an image, applying the EXIF orientation of JPEG files.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	// x/image/webp only reads lossy and lossless VP8; libwebp covers the rest
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, fmt.Errorf("failed to decode image: %w", err)
}

// Open decodes the image at path, or stdin for the pipe name.
func Open(path string) (image.Image, error) {
	if path == PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdin")
		}
		return Decode(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case WEBP:
		return webp.Encode(w, img, &webp.Options{Quality: 90})
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(95))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case BMP:
		return imaging.Encode(w, img, imaging.BMP)
	case TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
}

// Save encodes img to path, or stdout for the pipe name, picking the format from the extension.
func Save(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	if path == PipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("`-` should be used with a pipe for stdout")
		}
		return Encode(os.Stdout, img, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to open output file: %w", err)
	}
	if err := Encode(f, img, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
