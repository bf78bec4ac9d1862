package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
)

func dataset(w, h int, fill func(x, y int) float64) *raster.MemoryDataset {
	g := raster.NewGrid(w, h, models.SampleByte, raster.GrayInterp)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(0, x, y, fill(x, y))
		}
	}
	return raster.NewMemoryDataset(&models.ImageMetadata{Size: [2]int{w, h}}, g)
}

func TestComputeConstantBand(t *testing.T) {
	c := NewComputer(1)
	st, err := c.Compute(context.Background(), dataset(32, 16, func(x, y int) float64 { return 42 }))
	require.NoError(t, err)
	require.Len(t, st.Bands, 1)

	b := st.Bands[0]
	assert.Equal(t, 1, b.Band)
	assert.Equal(t, 42.0, b.Min)
	assert.Equal(t, 42.0, b.Max)
	assert.Equal(t, 42.0, b.Mean)
	assert.Equal(t, 0.0, b.StdDev)

	// Flat bands land entirely in the first histogram bin.
	require.Len(t, b.Histogram, histogramBins)
	assert.Equal(t, int64(32*16), b.Histogram[0])
}

func TestComputeRampBand(t *testing.T) {
	c := NewComputer(2)
	st, err := c.Compute(context.Background(), dataset(256, 1, func(x, y int) float64 { return float64(x) }))
	require.NoError(t, err)

	b := st.Bands[0]
	assert.Equal(t, 0.0, b.Min)
	assert.Equal(t, 255.0, b.Max)
	assert.InDelta(t, 127.5, b.Mean, 1e-9)
	assert.InDelta(t, 73.9, b.StdDev, 0.1)

	require.Len(t, b.Buckets, histogramBins+1)
	assert.Equal(t, 0.0, b.Buckets[0])
	assert.Equal(t, 255.0, b.Buckets[histogramBins])
	var total int64
	for _, n := range b.Histogram {
		total += n
	}
	assert.Equal(t, int64(256), total)
	// A uniform byte ramp puts one sample per bin.
	assert.Equal(t, int64(1), b.Histogram[0])
	assert.Equal(t, int64(1), b.Histogram[histogramBins-1])
}

func TestScanStrideDecimatesLargeImages(t *testing.T) {
	assert.Equal(t, 1, scanStride(512, 512))
	assert.Equal(t, 1, scanStride(1024, 100))
	assert.Equal(t, 2, scanStride(2048, 100))
	assert.Equal(t, 8, scanStride(100, 8192))
}

func TestComputeHonorsContext(t *testing.T) {
	c := NewComputer(1)
	// Occupy the only slot so the next call must wait on the context.
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Compute(ctx, dataset(4, 4, func(x, y int) float64 { return 0 }))
	assert.ErrorIs(t, err, context.Canceled)
}
