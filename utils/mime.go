package utils

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MimeTypeJPEG is regular jpgs.
	MimeTypeJPEG = "image/jpeg"

	// MimeTypePNG is regular pngs.
	MimeTypePNG = "image/png"

	// MimeTypeQOI is for .qoi "Quite OK Image" for lossless, fast encoding/decoding.
	MimeTypeQOI = "image/qoi"

	// MimeTypeTIFF is for .tif/.tiff files.
	MimeTypeTIFF = "image/tiff"

	// MimeTypeBMP is for .bmp files.
	MimeTypeBMP = "image/bmp"

	// MimeTypePPM is for netpbm .ppm files.
	MimeTypePPM = "image/x-portable-pixmap"
)

var extensionMimeTypes = map[string]string{
	".jpg":  MimeTypeJPEG,
	".jpeg": MimeTypeJPEG,
	".png":  MimeTypePNG,
	".qoi":  MimeTypeQOI,
	".tif":  MimeTypeTIFF,
	".tiff": MimeTypeTIFF,
	".bmp":  MimeTypeBMP,
	".ppm":  MimeTypePPM,
}

// MimeTypeFromPath returns the image mime type implied by the file extension of path.
func MimeTypeFromPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := extensionMimeTypes[ext]
	if !ok {
		return "", errors.Errorf("unsupported image extension %q", ext)
	}
	return mimeType, nil
}
