package rimage

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.viam.com/utils"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	rutils "go.viam.com/projmap/utils"
)

// NewImageFromFile reads and decodes an image of any supported format.
func NewImageFromFile(fn string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "can't decode image %q", fn)
	}
	return img, nil
}

// NewGrayFromFile reads an image and converts it to 8-bit grayscale.
func NewGrayFromFile(fn string) (*image.Gray, error) {
	img, err := NewImageFromFile(fn)
	if err != nil {
		return nil, err
	}
	return MakeGray(img), nil
}

// WriteImageToFile writes the image to the given file, choosing the encoding from the extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	mimeType, err := rutils.MimeTypeFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return encodeTo(f, img, mimeType)
}

// EncodeImage encodes the image in the given mime type.
func EncodeImage(ctx context.Context, img image.Image, mimeType string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeTo(&buf, img, mimeType); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes image bytes; the format is sniffed from the data.
func DecodeImage(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func encodeTo(w io.Writer, img image.Image, mimeType string) error {
	switch mimeType {
	case rutils.MimeTypePNG:
		return png.Encode(w, img)
	case rutils.MimeTypeJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case rutils.MimeTypeQOI:
		return qoi.Encode(w, img)
	case rutils.MimeTypeTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case rutils.MimeTypeBMP:
		return bmp.Encode(w, img)
	case rutils.MimeTypePPM:
		// ppm only takes the RGBA color model
		return ppm.Encode(w, toRGBA(img))
	default:
		return errors.Errorf("do not know how to encode %q", mimeType)
	}
}
