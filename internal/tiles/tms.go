package tiles

import (
	"math"
	"strconv"

	"github.com/go-spatial/geom"
)

// WebMercatorQuad is the tile matrix set served by the map tile endpoints.
// Constants follow the OGC Tile Matrix Set registry definition.
const (
	WebMercatorQuadID  = "WebMercatorQuad"
	WebMercatorQuadURI = "http://www.opengis.net/def/tilematrixset/OGC/1.0/WebMercatorQuad"

	mercatorOrigin = 20037508.342789244
	earthRadius    = 6378137.0
)

// TileID addresses one cell of the WebMercatorQuad pyramid. Row 0 is the
// northernmost row, matching the OGC tile origin in the upper-left corner.
type TileID struct {
	Matrix int // zoom level
	Row    int
	Col    int
}

// MatrixSize returns the number of rows (and columns) at a zoom level.
func MatrixSize(matrix int) int {
	return 1 << uint(matrix)
}

// InvertRow converts between TMS (south-origin) and OGC (north-origin) row
// indices at the given zoom level.
func InvertRow(row, matrix int) int {
	return MatrixSize(matrix) - 1 - row
}

// Valid reports whether the tile address exists within its matrix.
func (t TileID) Valid() bool {
	if t.Matrix < 0 || t.Row < 0 || t.Col < 0 {
		return false
	}
	n := MatrixSize(t.Matrix)
	return t.Row < n && t.Col < n
}

// Bounds returns the tile's bounding box in Web Mercator (EPSG:3857)
// coordinates as [minx, miny, maxx, maxy].
func (t TileID) Bounds() geom.Extent {
	span := 2 * mercatorOrigin / float64(MatrixSize(t.Matrix))
	minX := -mercatorOrigin + float64(t.Col)*span
	maxY := mercatorOrigin - float64(t.Row)*span
	return geom.Extent{minX, maxY - span, minX + span, maxY}
}

// MatrixLimits bounds the tile addresses that intersect a footprint at one
// zoom level, in the shape OGC API - Tiles tileset metadata expects.
type MatrixLimits struct {
	TileMatrix string `json:"tileMatrix"`
	MinTileRow int    `json:"minTileRow"`
	MaxTileRow int    `json:"maxTileRow"`
	MinTileCol int    `json:"minTileCol"`
	MaxTileCol int    `json:"maxTileCol"`
}

// LimitsFor computes the matrix limits covering a Web Mercator extent.
func LimitsFor(extent geom.Extent, matrix int) MatrixLimits {
	n := MatrixSize(matrix)
	span := 2 * mercatorOrigin / float64(n)
	col := func(x float64) int {
		return clampIndex(int(math.Floor((x+mercatorOrigin)/span)), n)
	}
	row := func(y float64) int {
		return clampIndex(int(math.Floor((mercatorOrigin-y)/span)), n)
	}
	return MatrixLimits{
		TileMatrix: strconv.Itoa(matrix),
		MinTileRow: row(extent.MaxY()),
		MaxTileRow: row(extent.MinY()),
		MinTileCol: col(extent.MinX()),
		MaxTileCol: col(extent.MaxX()),
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// LonLatToMercator projects a WGS84 coordinate into Web Mercator.
func LonLatToMercator(lon, lat float64) (float64, float64) {
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// MercatorToLonLat unprojects a Web Mercator coordinate back to WGS84.
func MercatorToLonLat(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
