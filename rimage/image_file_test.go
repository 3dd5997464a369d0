package rimage

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/projmap/utils"
)

func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}
	return img
}

func TestLosslessFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := checkerboard(6, 4)
	for _, name := range []string{"a.png", "a.qoi", "a.tiff", "a.bmp", "a.ppm", "nested/dir/b.png"} {
		fn := filepath.Join(dir, name)
		test.That(t, WriteImageToFile(fn, img), test.ShouldBeNil)

		back, err := NewGrayFromFile(fn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Bounds(), test.ShouldResemble, img.Bounds())
		test.That(t, back.Pix, test.ShouldResemble, img.Pix)
	}
}

func TestWriteImageUnknownExtension(t *testing.T) {
	err := WriteImageToFile(filepath.Join(t.TempDir(), "a.gif"), checkerboard(2, 2))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported image extension")
}

func TestNewImageFromMissingFile(t *testing.T) {
	_, err := NewImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEncodeDecodeImage(t *testing.T) {
	img := checkerboard(5, 5)
	data, err := EncodeImage(context.Background(), img, utils.MimeTypeQOI)
	test.That(t, err, test.ShouldBeNil)

	back, err := DecodeImage(context.Background(), data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, MakeGray(back).Pix, test.ShouldResemble, img.Pix)

	_, err = EncodeImage(context.Background(), img, "image/gif")
	test.That(t, err, test.ShouldNotBeNil)
}
