package tiles

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// MercatorCRSURI identifies EPSG:3857 the way OGC API - Tiles responses do.
const MercatorCRSURI = "http://www.opengis.net/def/crs/EPSG/0/3857"

// Link is an OGC API hypermedia link.
type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// TileSetSummary is one entry of the tileset list resource.
type TileSetSummary struct {
	Title            string `json:"title"`
	TileMatrixSetURI string `json:"tileMatrixSetURI"`
	CRS              string `json:"crs"`
	DataType         string `json:"dataType"`
	Links            []Link `json:"links"`
}

// TileSetList is the GET .../map/tiles response body.
type TileSetList struct {
	TileSets []TileSetSummary `json:"tilesets"`
}

// BoundingBox is the footprint advertised in tileset metadata, in the
// tileset CRS.
type BoundingBox struct {
	LowerLeft  [2]float64 `json:"lowerLeft"`
	UpperRight [2]float64 `json:"upperRight"`
	CRS        string     `json:"crs"`
}

// TileSetMetadata is the GET .../map/tiles/WebMercatorQuad response body.
type TileSetMetadata struct {
	Title               string         `json:"title"`
	TileMatrixSetURI    string         `json:"tileMatrixSetURI"`
	CRS                 string         `json:"crs"`
	DataType            string         `json:"dataType"`
	BoundingBox         *BoundingBox   `json:"boundingBox,omitempty"`
	TileMatrixSetLimits []MatrixLimits `json:"tileMatrixSetLimits"`
	Links               []Link         `json:"links,omitempty"`
}

// NewTileSetList describes the single tile matrix set the server offers.
func NewTileSetList(title, metadataHref string) *TileSetList {
	return &TileSetList{TileSets: []TileSetSummary{{
		Title:            title,
		TileMatrixSetURI: WebMercatorQuadURI,
		CRS:              MercatorCRSURI,
		DataType:         "map",
		Links: []Link{{
			Href:  metadataHref,
			Rel:   "self",
			Type:  "application/json",
			Title: WebMercatorQuadID + " tileset metadata",
		}},
	}}}
}

// MercatorExtent projects the image footprint into Web Mercator. Sources
// without a usable CRS cannot be served as map tiles.
func MercatorExtent(meta *models.ImageMetadata) (geom.Extent, error) {
	project := func(c models.Coordinate) (float64, float64) {
		if meta.CRS.EPSG == 4326 {
			return LonLatToMercator(c[0], c[1])
		}
		return c[0], c[1]
	}
	switch meta.CRS.EPSG {
	case 4326, 3857:
	default:
		return geom.Extent{}, tserrors.New(tserrors.KindValidation,
			"image CRS EPSG:%d cannot be mapped to %s", meta.CRS.EPSG, WebMercatorQuadID)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range []models.Coordinate{
		meta.Corners.UpperLeft, meta.Corners.UpperRight,
		meta.Corners.LowerRight, meta.Corners.LowerLeft,
	} {
		x, y := project(c)
		minX, minY = math.Min(minX, x), math.Min(minY, y)
		maxX, maxY = math.Max(maxX, x), math.Max(maxY, y)
	}
	return geom.Extent{minX, minY, maxX, maxY}, nil
}

// NativeMaxZoom picks the deepest zoom level worth advertising: the first
// level whose tile resolution meets or beats the source pixel resolution.
func NativeMaxZoom(meta *models.ImageMetadata, tileSize int) int {
	px := math.Abs(meta.PixelSize[0])
	if meta.CRS.EPSG == 4326 {
		// Degrees to meters at the equator.
		px *= 2 * math.Pi * earthRadius / 360
	}
	if px <= 0 || tileSize <= 0 {
		return 18
	}
	for z := 0; z <= 22; z++ {
		res := 2 * mercatorOrigin / float64(MatrixSize(z)*tileSize)
		if res <= px {
			return z
		}
	}
	return 22
}

// NewTileSetMetadata builds the WebMercatorQuad tileset description for one
// image, with per-level matrix limits trimmed to the footprint.
func NewTileSetMetadata(title string, meta *models.ImageMetadata, tileSize int) (*TileSetMetadata, error) {
	extent, err := MercatorExtent(meta)
	if err != nil {
		return nil, err
	}
	maxZoom := NativeMaxZoom(meta, tileSize)
	limits := make([]MatrixLimits, 0, maxZoom+1)
	for z := 0; z <= maxZoom; z++ {
		limits = append(limits, LimitsFor(extent, z))
	}
	return &TileSetMetadata{
		Title:            title,
		TileMatrixSetURI: WebMercatorQuadURI,
		CRS:              MercatorCRSURI,
		DataType:         "map",
		BoundingBox: &BoundingBox{
			LowerLeft:  [2]float64{extent.MinX(), extent.MinY()},
			UpperRight: [2]float64{extent.MaxX(), extent.MaxY()},
			CRS:        MercatorCRSURI,
		},
		TileMatrixSetLimits: limits,
	}, nil
}
