package raster

import (
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// OpenNITF reads a NITF 2.1 file with uncompressed imagery. The header walk
// covers the fixed-layout file header and first image subheader; blocked or
// compressed imagery is reported as a format failure rather than decoded
// incorrectly.
func OpenNITF(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hdr, err := parseNITFHeader(raw)
	if err != nil {
		return nil, err
	}
	grid, err := hdr.decodePixels(raw)
	if err != nil {
		return nil, err
	}
	meta := hdr.metadata(grid)
	return NewMemoryDataset(meta, grid), nil
}

// nitfHeader is the subset of the file header and first image subheader the
// adapter needs.
type nitfHeader struct {
	rows, cols int
	nbpp       int
	pvtype     string
	imode      string
	nbands     int
	irep       string
	corners    [4]models.Coordinate // UL, UR, LR, LL in lon/lat
	hasGeo     bool
	dataOffset int
	dataLength int
}

// fieldReader walks fixed-width ASCII header fields.
type fieldReader struct {
	raw []byte
	pos int
	err error
}

func (r *fieldReader) take(n int) string {
	if r.err != nil {
		return ""
	}
	if r.pos+n > len(r.raw) {
		r.err = tserrors.New(tserrors.KindIngestionFailure, "truncated NITF header at offset %d", r.pos)
		return ""
	}
	s := string(r.raw[r.pos : r.pos+n])
	r.pos += n
	return s
}

func (r *fieldReader) takeInt(n int) int {
	s := strings.TrimSpace(r.take(n))
	if r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.err = tserrors.Ingestion(err, tserrors.CauseFormat, "malformed NITF numeric field")
		return 0
	}
	return v
}

func (r *fieldReader) skip(n int) { r.take(n) }

func parseNITFHeader(raw []byte) (*nitfHeader, error) {
	fr := &fieldReader{raw: raw}
	if fr.take(9) != "NITF02.10" {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "not a NITF 2.1 file")
	}
	fr.skip(2 + 4 + 10 + 14 + 80) // CLEVEL, STYPE, OSTAID, FDT, FTITLE
	// security block
	fr.skip(1 + 2 + 11 + 2 + 20 + 2 + 8 + 4 + 1 + 8 + 43 + 1 + 40 + 1 + 8 + 15)
	fr.skip(5 + 5 + 1 + 3 + 24 + 18) // FSCOP..OPHONE
	fr.skip(12)                      // FL
	headerLength := fr.takeInt(6)    // HL
	numImages := fr.takeInt(3)       // NUMI
	if fr.err != nil {
		return nil, fr.err
	}
	if numImages < 1 {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "NITF file contains no image segments")
	}
	subheaderLength := fr.takeInt(6) // LISH of the first segment
	dataLength := fr.takeInt(10)     // LI of the first segment
	if fr.err != nil {
		return nil, fr.err
	}

	// Image subheader sits at HL; segment lists for additional images are
	// irrelevant to the first segment's placement.
	hdr := &nitfHeader{
		dataOffset: headerLength + subheaderLength,
		dataLength: dataLength,
	}
	ir := &fieldReader{raw: raw, pos: headerLength}
	if ir.take(2) != "IM" {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "malformed NITF image subheader")
	}
	ir.skip(10 + 14 + 17 + 80) // IID1, IDATIM, TGTID, IID2
	// security block
	ir.skip(1 + 2 + 11 + 2 + 20 + 2 + 8 + 4 + 1 + 8 + 43 + 1 + 40 + 1 + 8 + 15)
	ir.skip(1 + 42)          // ENCRYP, ISORCE
	hdr.rows = ir.takeInt(8) // NROWS
	hdr.cols = ir.takeInt(8) // NCOLS
	hdr.pvtype = strings.TrimSpace(ir.take(3))
	hdr.irep = strings.TrimSpace(ir.take(8))
	ir.skip(8 + 2 + 1) // ICAT, ABPP, PJUST
	icords := ir.take(1)
	if ir.err != nil {
		return nil, ir.err
	}
	if icords != " " {
		igeolo := ir.take(60)
		if ir.err != nil {
			return nil, ir.err
		}
		corners, err := parseIGEOLO(icords, igeolo)
		if err != nil {
			return nil, err
		}
		hdr.corners = corners
		hdr.hasGeo = true
	}
	nicom := ir.takeInt(1)
	ir.skip(nicom * 80)
	ic := ir.take(2)
	if ir.err != nil {
		return nil, ir.err
	}
	if ic != "NC" && ic != "NM" {
		return nil, tserrors.New(tserrors.KindIngestionFailure,
			"unsupported NITF image compression %q", ic)
	}
	if ic == "NM" {
		ir.skip(4) // COMRAT
	}
	hdr.nbands = ir.takeInt(1)
	if hdr.nbands == 0 {
		hdr.nbands = ir.takeInt(5) // XBANDS
	}
	for b := 0; b < hdr.nbands; b++ {
		ir.skip(2 + 6 + 1 + 3) // IREPBAND, ISUBCAT, IFC, IMFLT
		nluts := ir.takeInt(1)
		if nluts > 0 {
			return nil, tserrors.New(tserrors.KindIngestionFailure, "NITF band LUTs are not supported")
		}
	}
	ir.skip(1) // ISYNC
	hdr.imode = ir.take(1)
	nbpr := ir.takeInt(4)
	nbpc := ir.takeInt(4)
	ir.skip(4 + 4) // NPPBH, NPPBV
	hdr.nbpp = ir.takeInt(2)
	if ir.err != nil {
		return nil, ir.err
	}
	if nbpr != 1 || nbpc != 1 {
		return nil, tserrors.New(tserrors.KindIngestionFailure,
			"blocked NITF imagery (%dx%d blocks) is not supported", nbpr, nbpc)
	}
	return hdr, nil
}

// parseIGEOLO decodes the four 15-character corner locations. Corners are
// ordered UL, UR, LR, LL; latitude precedes longitude in both encodings.
func parseIGEOLO(icords, igeolo string) ([4]models.Coordinate, error) {
	var corners [4]models.Coordinate
	for i := 0; i < 4; i++ {
		field := igeolo[i*15 : (i+1)*15]
		var lat, lon float64
		var err error
		switch icords {
		case "D":
			lat, err = strconv.ParseFloat(strings.TrimSpace(field[0:7]), 64)
			if err == nil {
				lon, err = strconv.ParseFloat(strings.TrimSpace(field[7:15]), 64)
			}
		case "G":
			lat, lon, err = parseDMS(field)
		default:
			return corners, tserrors.New(tserrors.KindIngestionFailure,
				"unsupported NITF coordinate system %q", icords)
		}
		if err != nil {
			return corners, tserrors.Ingestion(err, tserrors.CauseFormat, "malformed NITF corner coordinates")
		}
		corners[i] = models.Coordinate{lon, lat}
	}
	return corners, nil
}

// parseDMS decodes ddmmssXdddmmssY geographic corners.
func parseDMS(field string) (float64, float64, error) {
	latDeg, err1 := strconv.Atoi(field[0:2])
	latMin, err2 := strconv.Atoi(field[2:4])
	latSec, err3 := strconv.Atoi(field[4:6])
	lonDeg, err4 := strconv.Atoi(field[7:10])
	lonMin, err5 := strconv.Atoi(field[10:12])
	lonSec, err6 := strconv.Atoi(field[12:14])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return 0, 0, err
		}
	}
	lat := float64(latDeg) + float64(latMin)/60 + float64(latSec)/3600
	if field[6] == 'S' {
		lat = -lat
	}
	lon := float64(lonDeg) + float64(lonMin)/60 + float64(lonSec)/3600
	if field[14] == 'W' {
		lon = -lon
	}
	return lat, lon, nil
}

func (h *nitfHeader) sampleType() models.SampleType {
	switch {
	case h.pvtype == "SI" && h.nbpp == 16:
		return models.SampleInt16
	case h.nbpp == 16:
		return models.SampleUInt16
	default:
		return models.SampleByte
	}
}

func (h *nitfHeader) interps() []models.ColorInterpretation {
	switch {
	case h.nbands == 1:
		return GrayInterp
	case h.nbands == 3:
		return RGBInterp
	default:
		out := make([]models.ColorInterpretation, h.nbands)
		for i := range out {
			out[i] = models.InterpGray
		}
		return out
	}
}

// decodePixels reads the uncompressed imagery for the single block. IMODE B
// stores planes band after band; IMODE P interleaves samples per pixel.
func (h *nitfHeader) decodePixels(raw []byte) (*Grid, error) {
	if h.nbpp != 8 && h.nbpp != 16 {
		return nil, tserrors.New(tserrors.KindIngestionFailure,
			"unsupported NITF sample depth %d bits", h.nbpp)
	}
	bytesPer := h.nbpp / 8
	expected := h.rows * h.cols * h.nbands * bytesPer
	if h.dataOffset+expected > len(raw) {
		return nil, tserrors.New(tserrors.KindIngestionFailure, "truncated NITF image data")
	}
	data := raw[h.dataOffset : h.dataOffset+expected]
	grid := NewGrid(h.cols, h.rows, h.sampleType(), h.interps())

	readSample := func(off int) float64 {
		if bytesPer == 1 {
			return float64(data[off])
		}
		v := binary.BigEndian.Uint16(data[off : off+2])
		if h.pvtype == "SI" {
			return float64(int16(v))
		}
		return float64(v)
	}

	planeSize := h.rows * h.cols * bytesPer
	for y := 0; y < h.rows; y++ {
		for x := 0; x < h.cols; x++ {
			for b := 0; b < h.nbands; b++ {
				var off int
				if h.imode == "P" {
					off = ((y*h.cols+x)*h.nbands + b) * bytesPer
				} else {
					off = b*planeSize + (y*h.cols+x)*bytesPer
				}
				grid.Set(b, x, y, readSample(off))
			}
		}
	}
	return grid, nil
}

func (h *nitfHeader) metadata(grid *Grid) *models.ImageMetadata {
	meta := &models.ImageMetadata{
		Size:       [2]int{grid.Width, grid.Height},
		DriverName: "NITF",
	}
	if h.hasGeo {
		ul, ur, lr, ll := h.corners[0], h.corners[1], h.corners[2], h.corners[3]
		cols, rows := float64(h.cols), float64(h.rows)
		meta.GeoTransform = [6]float64{
			ul[0], (ur[0] - ul[0]) / cols, (ll[0] - ul[0]) / rows,
			ul[1], (ur[1] - ul[1]) / cols, (ll[1] - ul[1]) / rows,
		}
		meta.CRS = models.CRSInfo{EPSG: 4326, WKT: wgs84WKT}
		meta.Corners = models.CornerCoordinates{
			UpperLeft:  ul,
			UpperRight: ur,
			LowerRight: lr,
			LowerLeft:  ll,
			Center:     meta.Apply(cols/2, rows/2),
		}
	} else {
		meta.GeoTransform = [6]float64{0, 1, 0, 0, 0, 1}
		fw, fh := float64(grid.Width), float64(grid.Height)
		meta.Corners = models.CornerCoordinates{
			UpperLeft:  meta.Apply(0, 0),
			LowerLeft:  meta.Apply(0, fh),
			LowerRight: meta.Apply(fw, fh),
			UpperRight: meta.Apply(fw, 0),
			Center:     meta.Apply(fw/2, fh/2),
		}
	}
	meta.PixelSize = [2]float64{math.Abs(meta.GeoTransform[1]), math.Abs(meta.GeoTransform[5])}
	for b := 0; b < grid.BandCount(); b++ {
		meta.Bands = append(meta.Bands, models.BandInfo{
			Index:          b + 1,
			DataType:       grid.SampleType,
			Interpretation: grid.Interpretation(b),
		})
	}
	return meta
}
