package raster

import (
	"encoding/binary"
	"image"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// TIFF tags consumed by the adapter. Pixel decoding is delegated to
// x/image/tiff; the IFD is walked natively only for the GeoTIFF tags that
// the standard decoder discards.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagSamplesPerPixel = 277
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735
	tagGeoAsciiParams  = 34737
)

// GeoTIFF key ids carrying the CRS code.
const (
	geoKeyModelType    = 1024
	geoKeyGeographicCS = 2048
	geoKeyProjectedCS  = 3072
)

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`
const webMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`

// OpenGeoTIFF decodes a GeoTIFF (including cloud-optimized layouts that the
// standard codec understands) into a memory dataset and extracts its
// georeferencing from the IFD.
func OpenGeoTIFF(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, tserrors.Ingestion(err, tserrors.CauseFormat, "could not decode TIFF imagery")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	geo, err := parseGeoTags(raw)
	if err != nil {
		return nil, err
	}

	grid := gridFromImage(img, geo.sampleType())
	meta := geo.metadata(grid)
	meta.DriverName = "GTiff"
	return NewMemoryDataset(meta, grid), nil
}

// gridFromImage converts decoded pixels into per-band float planes. The band
// layout follows the color model: Gray/Gray16 become one band, everything
// else is treated as RGB(A).
func gridFromImage(img image.Image, sampleType models.SampleType) *Grid {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		g := NewGrid(w, h, models.SampleByte, GrayInterp)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.Set(0, x, y, float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return g
	case *image.Gray16:
		g := NewGrid(w, h, models.SampleUInt16, GrayInterp)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g.Set(0, x, y, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return g
	default:
		g := NewGrid(w, h, sampleType, RGBInterp)
		shift := uint(8)
		if sampleType == models.SampleUInt16 {
			shift = 0
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, gn, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				g.Set(0, x, y, float64(r>>shift))
				g.Set(1, x, y, float64(gn>>shift))
				g.Set(2, x, y, float64(bl>>shift))
			}
		}
		return g
	}
}

// geoTags is the subset of IFD content needed to build ImageMetadata.
type geoTags struct {
	width, height int
	bitsPerSample int
	sampleFormat  int
	pixelScale    []float64
	tiepoint      []float64
	transform     []float64
	epsg          int
}

func (t *geoTags) sampleType() models.SampleType {
	switch {
	case t.sampleFormat == 3 && t.bitsPerSample == 32:
		return models.SampleFloat32
	case t.sampleFormat == 3:
		return models.SampleFloat64
	case t.sampleFormat == 2 && t.bitsPerSample == 16:
		return models.SampleInt16
	case t.bitsPerSample == 16:
		return models.SampleUInt16
	case t.bitsPerSample == 32:
		return models.SampleUInt32
	default:
		return models.SampleByte
	}
}

// geoTransform derives the six affine coefficients from either the model
// transformation matrix or the pixel-scale/tiepoint pair.
func (t *geoTags) geoTransform() [6]float64 {
	if len(t.transform) == 16 {
		m := t.transform
		return [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
	}
	if len(t.pixelScale) >= 2 && len(t.tiepoint) >= 6 {
		sx, sy := t.pixelScale[0], t.pixelScale[1]
		i, j := t.tiepoint[0], t.tiepoint[1]
		x, y := t.tiepoint[3], t.tiepoint[4]
		return [6]float64{x - i*sx, sx, 0, y + j*sy, 0, -sy}
	}
	// Ungeoreferenced: identity transform in pixel space.
	return [6]float64{0, 1, 0, 0, 0, 1}
}

func (t *geoTags) metadata(grid *Grid) *models.ImageMetadata {
	meta := &models.ImageMetadata{
		Size:         [2]int{grid.Width, grid.Height},
		GeoTransform: t.geoTransform(),
		CRS:          models.CRSInfo{EPSG: t.epsg},
	}
	switch t.epsg {
	case 4326:
		meta.CRS.WKT = wgs84WKT
	case 3857:
		meta.CRS.WKT = webMercatorWKT
	}
	meta.PixelSize = [2]float64{math.Abs(meta.GeoTransform[1]), math.Abs(meta.GeoTransform[5])}
	fw, fh := float64(grid.Width), float64(grid.Height)
	meta.Corners = models.CornerCoordinates{
		UpperLeft:  meta.Apply(0, 0),
		LowerLeft:  meta.Apply(0, fh),
		LowerRight: meta.Apply(fw, fh),
		UpperRight: meta.Apply(fw, 0),
		Center:     meta.Apply(fw/2, fh/2),
	}
	for b := 0; b < grid.BandCount(); b++ {
		meta.Bands = append(meta.Bands, models.BandInfo{
			Index:          b + 1,
			DataType:       grid.SampleType,
			Interpretation: grid.Interpretation(b),
		})
	}
	return meta
}

// parseGeoTags walks the first IFD of a classic TIFF. BigTIFF is rejected;
// sources that large are expected to arrive as overview-bearing COGs.
func parseGeoTags(raw []byte) (*geoTags, error) {
	if len(raw) < 8 {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "truncated TIFF header")
	}
	var order binary.ByteOrder
	switch {
	case raw[0] == 'I' && raw[1] == 'I':
		order = binary.LittleEndian
	case raw[0] == 'M' && raw[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, tserrors.New(tserrors.KindIngestionFailure, "not a TIFF file")
	}
	if order.Uint16(raw[2:4]) != 42 {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "unsupported TIFF variant")
	}

	tags := &geoTags{bitsPerSample: 8, sampleFormat: 1}
	ifdOffset := order.Uint32(raw[4:8])
	if int(ifdOffset)+2 > len(raw) {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "TIFF IFD offset out of range")
	}
	count := int(order.Uint16(raw[ifdOffset : ifdOffset+2]))
	var geoDir []uint16
	for i := 0; i < count; i++ {
		off := int(ifdOffset) + 2 + i*12
		if off+12 > len(raw) {
			break
		}
		entry := raw[off : off+12]
		tag := order.Uint16(entry[0:2])
		fieldType := order.Uint16(entry[2:4])
		valueCount := order.Uint32(entry[4:8])

		switch tag {
		case tagImageWidth:
			tags.width = int(readScalar(entry, order, fieldType))
		case tagImageLength:
			tags.height = int(readScalar(entry, order, fieldType))
		case tagBitsPerSample:
			vals := readShorts(raw, entry, order, valueCount)
			if len(vals) > 0 {
				tags.bitsPerSample = int(vals[0])
			}
		case tagSampleFormat:
			vals := readShorts(raw, entry, order, valueCount)
			if len(vals) > 0 {
				tags.sampleFormat = int(vals[0])
			}
		case tagModelPixelScale:
			tags.pixelScale = readDoubles(raw, entry, order, valueCount)
		case tagModelTiepoint:
			tags.tiepoint = readDoubles(raw, entry, order, valueCount)
		case tagModelTransform:
			tags.transform = readDoubles(raw, entry, order, valueCount)
		case tagGeoKeyDirectory:
			geoDir = readShorts(raw, entry, order, valueCount)
		}
	}

	// GeoKey directory: a 4-short header then keyID/location/count/value
	// quadruples. Inline values (location 0) carry the CRS code directly.
	for i := 4; i+3 < len(geoDir); i += 4 {
		keyID, location, value := geoDir[i], geoDir[i+1], geoDir[i+3]
		if location != 0 {
			continue
		}
		switch keyID {
		case geoKeyGeographicCS, geoKeyProjectedCS:
			if tags.epsg == 0 || keyID == geoKeyProjectedCS {
				tags.epsg = int(value)
			}
		}
	}
	return tags, nil
}

// readScalar reads an inline SHORT or LONG value.
func readScalar(entry []byte, order binary.ByteOrder, fieldType uint16) uint32 {
	if fieldType == 3 { // SHORT
		return uint32(order.Uint16(entry[8:10]))
	}
	return order.Uint32(entry[8:12])
}

func readShorts(raw, entry []byte, order binary.ByteOrder, count uint32) []uint16 {
	n := int(count)
	out := make([]uint16, 0, n)
	if n <= 2 {
		for i := 0; i < n; i++ {
			out = append(out, order.Uint16(entry[8+i*2:10+i*2]))
		}
		return out
	}
	off := int(order.Uint32(entry[8:12]))
	for i := 0; i < n && off+i*2+2 <= len(raw); i++ {
		out = append(out, order.Uint16(raw[off+i*2:off+i*2+2]))
	}
	return out
}

func readDoubles(raw, entry []byte, order binary.ByteOrder, count uint32) []float64 {
	n := int(count)
	off := int(order.Uint32(entry[8:12]))
	out := make([]float64, 0, n)
	for i := 0; i < n && off+i*8+8 <= len(raw); i++ {
		bits := order.Uint64(raw[off+i*8 : off+i*8+8])
		out = append(out, math.Float64frombits(bits))
	}
	return out
}
