package tiles

import (
	"bytes"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// Format is a supported tile output encoding.
type Format string

const (
	FormatPNG  Format = "PNG"
	FormatJPEG Format = "JPEG"
	FormatTIFF Format = "GTIFF"
)

// ParseFormat normalizes a format path segment; GDAL-style aliases are
// accepted for compatibility with existing clients.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "PNG":
		return FormatPNG, nil
	case "JPEG", "JPG":
		return FormatJPEG, nil
	case "GTIFF", "TIFF", "TIF":
		return FormatTIFF, nil
	default:
		return "", tserrors.New(tserrors.KindUnsupportedFormat,
			"unsupported tile format %q", s)
	}
}

// MediaType returns the content type for an encoded tile.
func (f Format) MediaType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Encode serializes the rendered image. JPEG cannot carry the transparency
// used for nodata fill, so uncovered pixels flatten to black there.
func Encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, tserrors.New(tserrors.KindUnsupportedFormat,
			"unsupported tile format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
