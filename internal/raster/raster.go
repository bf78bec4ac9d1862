// Package raster adapts source imagery formats behind a narrow read
// contract: open a materialized file, expose its georeferencing and band
// layout, and serve windowed pixel reads. The tile engine and statistics
// module depend only on this contract, never on a concrete format.
package raster

import (
	"image"
	"math"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
)

// Dataset is an open read handle on one source image. Implementations are
// safe for concurrent readers once opened.
type Dataset interface {
	// Metadata describes the coordinate system, geotransform, size and
	// band layout of the source image.
	Metadata() *models.ImageMetadata
	// ReadWindow extracts a window in source pixel space. The window is
	// clipped to the image extent and the clipped rectangle is returned
	// alongside the samples; a window with an empty intersection yields an
	// OutOfBounds error.
	ReadWindow(window image.Rectangle) (*Grid, image.Rectangle, error)
	Close() error
}

// Grid holds decoded samples for a pixel window, one float64 plane per band.
// Sample values keep their source scale; conversion to an output bit depth
// happens during range adjustment.
type Grid struct {
	Width      int
	Height     int
	SampleType models.SampleType
	bands      [][]float64
	interps    []models.ColorInterpretation
}

// NewGrid allocates a grid of the given shape with zeroed planes.
func NewGrid(width, height int, sampleType models.SampleType, interps []models.ColorInterpretation) *Grid {
	bands := make([][]float64, len(interps))
	for i := range bands {
		bands[i] = make([]float64, width*height)
	}
	return &Grid{
		Width:      width,
		Height:     height,
		SampleType: sampleType,
		bands:      bands,
		interps:    interps,
	}
}

func (g *Grid) BandCount() int { return len(g.bands) }

func (g *Grid) Interpretation(band int) models.ColorInterpretation { return g.interps[band] }

// Band exposes the raw plane for statistics scans.
func (g *Grid) Band(band int) []float64 { return g.bands[band] }

func (g *Grid) Set(band, x, y int, v float64) {
	g.bands[band][y*g.Width+x] = v
}

func (g *Grid) Sample(band, x, y int) float64 {
	return g.bands[band][y*g.Width+x]
}

// SampleClamped reads with coordinates clamped to the grid edge.
func (g *Grid) SampleClamped(band, x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.Width {
		x = g.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.Height {
		y = g.Height - 1
	}
	return g.Sample(band, x, y)
}

// Nearest samples the plane at a fractional coordinate without
// interpolation.
func (g *Grid) Nearest(band int, x, y float64) float64 {
	return g.SampleClamped(band, int(math.Floor(x+0.5)), int(math.Floor(y+0.5)))
}

// Bilinear samples the plane at a fractional coordinate with 2x2
// interpolation.
func (g *Grid) Bilinear(band int, x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix := int(x0)
	iy := int(y0)

	v00 := g.SampleClamped(band, ix, iy)
	v10 := g.SampleClamped(band, ix+1, iy)
	v01 := g.SampleClamped(band, ix, iy+1)
	v11 := g.SampleClamped(band, ix+1, iy+1)

	top := v00 + fx*(v10-v00)
	bottom := v01 + fx*(v11-v01)
	return top + fy*(bottom-top)
}

// Crop copies a sub-window into a new grid. The rectangle must lie within
// the grid bounds.
func (g *Grid) Crop(r image.Rectangle) *Grid {
	out := NewGrid(r.Dx(), r.Dy(), g.SampleType, g.interps)
	for b := range g.bands {
		for y := 0; y < r.Dy(); y++ {
			srcOff := (r.Min.Y+y)*g.Width + r.Min.X
			dstOff := y * out.Width
			copy(out.bands[b][dstOff:dstOff+r.Dx()], g.bands[b][srcOff:srcOff+r.Dx()])
		}
	}
	return out
}

// TypeMax returns the largest representable sample value for integer types,
// used when scaling stretched values into the output depth.
func TypeMax(t models.SampleType) float64 {
	switch t {
	case models.SampleByte:
		return 255
	case models.SampleUInt16:
		return 65535
	case models.SampleInt16:
		return 32767
	case models.SampleUInt32:
		return 4294967295
	default:
		return 255
	}
}

// GrayInterp and RGBAInterp are the band layouts produced by the adapters.
var (
	GrayInterp = []models.ColorInterpretation{models.InterpGray}
	RGBInterp  = []models.ColorInterpretation{models.InterpRed, models.InterpGreen, models.InterpBlue}
	RGBAInterp = []models.ColorInterpretation{models.InterpRed, models.InterpGreen, models.InterpBlue, models.InterpAlpha}
)
