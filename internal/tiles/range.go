package tiles

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
)

// draLowPercentile and draHighPercentile bound the dynamic range adjustment
// stretch, discarding sensor noise at both tails.
const (
	draLowPercentile  = 0.02
	draHighPercentile = 0.98
)

// bandRange is the [lo, hi] source interval mapped onto the output depth.
type bandRange struct {
	lo, hi float64
}

// rangesFor derives per-band stretch intervals from the samples being
// rendered. The same window always yields the same intervals, keeping tile
// output byte-identical across repeated requests.
func rangesFor(grid *raster.Grid, valid []bool, policy models.RangeAdjustment) []bandRange {
	out := make([]bandRange, grid.BandCount())
	for b := range out {
		switch policy {
		case models.RangeMinMax:
			out[b] = minMaxRange(grid.Band(b), valid)
		case models.RangeDRA:
			out[b] = percentileRange(grid.Band(b), valid)
		default:
			out[b] = bandRange{0, raster.TypeMax(grid.SampleType)}
		}
	}
	return out
}

func minMaxRange(samples []float64, valid []bool) bandRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range samples {
		if valid != nil && !valid[i] {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(lo, 1) {
		return bandRange{0, 255}
	}
	return bandRange{lo, hi}
}

func percentileRange(samples []float64, valid []bool) bandRange {
	vals := make([]float64, 0, len(samples))
	for i, v := range samples {
		if valid != nil && !valid[i] {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return bandRange{0, 255}
	}
	sort.Float64s(vals)
	lo := vals[int(float64(len(vals)-1)*draLowPercentile)]
	hi := vals[int(float64(len(vals)-1)*draHighPercentile)]
	return bandRange{lo, hi}
}

func (r bandRange) scale(v float64) uint8 {
	if r.hi <= r.lo {
		return 0
	}
	scaled := (v - r.lo) / (r.hi - r.lo) * 255
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}

// toImage applies the stretch and flattens the band planes into an NRGBA
// image. Pixels flagged invalid in the mask come out fully transparent,
// which is how partial tile coverage is represented. A nil mask means full
// coverage.
func toImage(grid *raster.Grid, valid []bool, policy models.RangeAdjustment) *image.NRGBA {
	ranges := rangesFor(grid, valid, policy)
	out := image.NewNRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	gray := grid.BandCount() < 3
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			idx := y*grid.Width + x
			if valid != nil && !valid[idx] {
				continue
			}
			var c color.NRGBA
			if gray {
				v := ranges[0].scale(grid.Sample(0, x, y))
				c = color.NRGBA{R: v, G: v, B: v, A: 255}
			} else {
				c = color.NRGBA{
					R: ranges[0].scale(grid.Sample(0, x, y)),
					G: ranges[1].scale(grid.Sample(1, x, y)),
					B: ranges[2].scale(grid.Sample(2, x, y)),
					A: 255,
				}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
