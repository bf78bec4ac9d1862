package tiles

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
)

func TestMatrixSizeAndInvertRow(t *testing.T) {
	assert.Equal(t, 1, MatrixSize(0))
	assert.Equal(t, 8, MatrixSize(3))
	assert.Equal(t, 7, InvertRow(0, 3))
	assert.Equal(t, 0, InvertRow(7, 3))
	assert.Equal(t, 0, InvertRow(0, 0))
}

func TestTileIDValid(t *testing.T) {
	assert.True(t, TileID{Matrix: 0, Row: 0, Col: 0}.Valid())
	assert.True(t, TileID{Matrix: 3, Row: 7, Col: 7}.Valid())
	assert.False(t, TileID{Matrix: 3, Row: 8, Col: 0}.Valid())
	assert.False(t, TileID{Matrix: 3, Row: 0, Col: 8}.Valid())
	assert.False(t, TileID{Matrix: -1, Row: 0, Col: 0}.Valid())
	assert.False(t, TileID{Matrix: 2, Row: -1, Col: 0}.Valid())
}

func TestTileBounds(t *testing.T) {
	root := TileID{Matrix: 0, Row: 0, Col: 0}.Bounds()
	assert.InDelta(t, -mercatorOrigin, root.MinX(), 1e-6)
	assert.InDelta(t, -mercatorOrigin, root.MinY(), 1e-6)
	assert.InDelta(t, mercatorOrigin, root.MaxX(), 1e-6)
	assert.InDelta(t, mercatorOrigin, root.MaxY(), 1e-6)

	// Northeast quadrant at zoom 1.
	ne := TileID{Matrix: 1, Row: 0, Col: 1}.Bounds()
	assert.InDelta(t, 0, ne.MinX(), 1e-6)
	assert.InDelta(t, 0, ne.MinY(), 1e-6)
	assert.InDelta(t, mercatorOrigin, ne.MaxX(), 1e-6)
	assert.InDelta(t, mercatorOrigin, ne.MaxY(), 1e-6)
}

func TestLimitsFor(t *testing.T) {
	// A footprint strictly inside the northeast quadrant.
	extent := geom.Extent{1000, 1000, mercatorOrigin/2 - 1000, mercatorOrigin/2 - 1000}

	l := LimitsFor(extent, 0)
	assert.Equal(t, MatrixLimits{TileMatrix: "0"}, l)

	l = LimitsFor(extent, 1)
	assert.Equal(t, MatrixLimits{
		TileMatrix: "1",
		MinTileRow: 0, MaxTileRow: 0,
		MinTileCol: 1, MaxTileCol: 1,
	}, l)

	l = LimitsFor(extent, 2)
	assert.Equal(t, MatrixLimits{
		TileMatrix: "2",
		MinTileRow: 1, MaxTileRow: 1,
		MinTileCol: 2, MaxTileCol: 2,
	}, l)
}

func TestMercatorRoundTrip(t *testing.T) {
	x, y := LonLatToMercator(0, 0)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	lon, lat := MercatorToLonLat(LonLatToMercator(12.5, 41.9))
	assert.InDelta(t, 12.5, lon, 1e-9)
	assert.InDelta(t, 41.9, lat, 1e-9)
}
