package imageio

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := imaging.New(32, 24, color.NRGBA{R: 20, G: 40, B: 60, A: 255})
	for y := 4; y < 12; y++ {
		for x := 8; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
		}
	}
	return img
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.jpg", JPEG},
		{"out.JPEG", JPEG},
		{"out.png", PNG},
		{"a/b/out.gif", GIF},
		{"out.bmp", BMP},
		{"out.tif", TIFF},
		{"out.webp", WEBP},
		{PipeName, JPEG},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatFromPath("out.heic")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = FormatFromPath("noext")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeDecode_Lossless(t *testing.T) {
	src := testImage()

	for _, format := range []Format{PNG, BMP, TIFF} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, src, format), format.String())

		img, err := Decode(&buf)
		require.NoError(t, err, format.String())
		assert.Equal(t, src.Bounds(), img.Bounds(), format.String())
		assert.Equal(t, color.NRGBAModel.Convert(src.At(10, 6)), color.NRGBAModel.Convert(img.At(10, 6)), format.String())
	}
}

func TestEncodeDecode_Lossy(t *testing.T) {
	src := testImage()

	for _, format := range []Format{JPEG, WEBP} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, src, format), format.String())

		img, err := DecodeBytes(buf.Bytes())
		require.NoError(t, err, format.String())
		assert.Equal(t, src.Bounds(), img.Bounds(), format.String())

		r, _, _, _ := img.At(14, 8).RGBA()
		assert.Greater(t, r>>8, uint32(200), format.String())
	}
}

func TestSaveOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.png")
	require.NoError(t, Save(path, testImage()))

	img, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	_, err = Open(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := DecodeBytes([]byte("not an image"))
	assert.Error(t, err)
}
