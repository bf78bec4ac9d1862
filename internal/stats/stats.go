// Package stats computes per-band numeric summaries for ready viewpoints.
// Scans are decimated so statistics over very large images stay cheap; the
// summary is computed once after ingestion and persisted as a sidecar.
package stats

import (
	"context"
	"image"
	"math"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
)

const (
	// decimatedLongSide caps the number of samples scanned along the longer
	// image axis. The stride grows with the image so the sample count stays
	// roughly constant.
	decimatedLongSide = 1024
	histogramBins     = 256
)

// Computer runs statistics scans with a bounded number in flight. Scans hold
// a decoded copy of the image, so the bound limits peak memory rather than
// CPU.
type Computer struct {
	sem chan struct{}
}

func NewComputer(concurrency int) *Computer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Computer{sem: make(chan struct{}, concurrency)}
}

// Compute scans the dataset and summarizes every band: min, max, mean,
// standard deviation and a 256-bin histogram spanning the observed range.
func (c *Computer) Compute(ctx context.Context, ds raster.Dataset) (*models.ImageStatistics, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	meta := ds.Metadata()
	grid, _, err := ds.ReadWindow(image.Rect(0, 0, meta.Size[0], meta.Size[1]))
	if err != nil {
		return nil, err
	}

	stride := scanStride(grid.Width, grid.Height)
	out := &models.ImageStatistics{Bands: make([]models.BandStatistics, grid.BandCount())}
	for b := 0; b < grid.BandCount(); b++ {
		out.Bands[b] = summarizeBand(grid, b, stride)
	}
	return out, nil
}

func scanStride(width, height int) int {
	long := width
	if height > long {
		long = height
	}
	stride := (long + decimatedLongSide - 1) / decimatedLongSide
	if stride < 1 {
		stride = 1
	}
	return stride
}

func summarizeBand(grid *raster.Grid, band, stride int) models.BandStatistics {
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum, sumSq float64
	var n int64
	for y := 0; y < grid.Height; y += stride {
		for x := 0; x < grid.Width; x += stride {
			v := grid.Sample(band, x, y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
			sum += v
			sumSq += v * v
			n++
		}
	}

	st := models.BandStatistics{Band: band + 1}
	if n == 0 {
		return st
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	st.Min = lo
	st.Max = hi
	st.Mean = mean
	st.StdDev = math.Sqrt(variance)
	st.Histogram, st.Buckets = histogram(grid, band, stride, lo, hi)
	return st
}

// histogram bins the decimated samples over [lo, hi]. Buckets holds the
// bins+1 edge values; a flat band collapses into the first bin.
func histogram(grid *raster.Grid, band, stride int, lo, hi float64) ([]int64, []float64) {
	counts := make([]int64, histogramBins)
	edges := make([]float64, histogramBins+1)
	width := (hi - lo) / histogramBins
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[histogramBins] = hi

	for y := 0; y < grid.Height; y += stride {
		for x := 0; x < grid.Width; x += stride {
			v := grid.Sample(band, x, y)
			bin := 0
			if width > 0 {
				bin = int((v - lo) / width)
				if bin >= histogramBins {
					bin = histogramBins - 1
				}
			}
			counts[bin]++
		}
	}
	return counts, edges
}
