package tiles

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewEngine(store, "nearest")
}

// injectDataset registers an already-decoded dataset under a fresh READY
// viewpoint, bypassing the file open path.
func injectDataset(e *Engine, ds raster.Dataset, tileSize int) *models.Viewpoint {
	vp := &models.Viewpoint{
		ID:       uuid.New(),
		TileSize: tileSize,
		Status:   models.StatusReady,
	}
	e.mu.Lock()
	e.open[vp.ID] = ds
	e.mu.Unlock()
	return vp
}

func grayDataset(w, h int, fill func(x, y int) float64, meta *models.ImageMetadata) *raster.MemoryDataset {
	g := raster.NewGrid(w, h, models.SampleByte, raster.GrayInterp)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(0, x, y, fill(x, y))
		}
	}
	if meta == nil {
		meta = &models.ImageMetadata{}
	}
	meta.Size = [2]int{w, h}
	if len(meta.Bands) == 0 {
		meta.Bands = []models.BandInfo{{DataType: models.SampleByte, Interpretation: models.InterpGray}}
	}
	return raster.NewMemoryDataset(meta, g)
}

func decodePNG(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		nrgba = image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				nrgba.Set(x, y, img.At(x, y))
			}
		}
	}
	return nrgba
}

func TestRenderTileFullCoverage(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 {
		return float64((x * 4) % 256)
	}, nil), 16)

	data, err := e.RenderTile(vp, 0, 1, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	// Tile (1, 0) at level 0 starts at source column 16.
	px := img.NRGBAAt(3, 5)
	assert.Equal(t, uint8((16+3)*4), px.R)
	assert.Equal(t, uint8(255), px.A)
}

func TestRenderTileDownsamplesAtHigherLevels(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 {
		return float64(x * 2)
	}, nil), 16)

	// Level 2 covers the whole 64px image in one 16px tile.
	data, err := e.RenderTile(vp, 2, 0, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	left := img.NRGBAAt(0, 8).R
	right := img.NRGBAAt(15, 8).R
	assert.Less(t, left, right)
}

func TestRenderTilePartialCoverageIsTransparent(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(40, 40, func(x, y int) float64 {
		return 120
	}, nil), 16)

	// Tile (2, 0) wants columns 32..48 of a 40px image.
	data, err := e.RenderTile(vp, 0, 2, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.Equal(t, uint8(255), img.NRGBAAt(3, 3).A)
	assert.Equal(t, uint8(0), img.NRGBAAt(12, 3).A)
}

func TestRenderTileOutsideImage(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 { return 1 }, nil), 16)

	_, err := e.RenderTile(vp, 0, 4, 0, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsOutOfBounds(err))

	_, err = e.RenderTile(vp, -1, 0, 0, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsValidation(err))
}

func TestRenderTileRequiresReady(t *testing.T) {
	e := newTestEngine(t)
	for _, status := range []models.ViewpointStatus{
		models.StatusRequested, models.StatusDownloading, models.StatusFailed,
	} {
		vp := &models.Viewpoint{ID: uuid.New(), TileSize: 16, Status: status}
		_, err := e.RenderTile(vp, 0, 0, 0, FormatPNG, models.RangeNone)
		assert.True(t, tserrors.IsNotReady(err), string(status))
	}
}

func TestRenderTileIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 {
		return float64((x*7 + y*3) % 256)
	}, nil), 16)

	first, err := e.RenderTile(vp, 0, 1, 1, FormatPNG, models.RangeDRA)
	require.NoError(t, err)
	second, err := e.RenderTile(vp, 0, 1, 1, FormatPNG, models.RangeDRA)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func geoMeta(epsg int, gt [6]float64) *models.ImageMetadata {
	return &models.ImageMetadata{
		CRS:          models.CRSInfo{EPSG: epsg},
		GeoTransform: gt,
	}
}

func TestRenderMapTileWarpsGeographicSource(t *testing.T) {
	e := newTestEngine(t)
	// Image spans lon 0..90, lat 0..66.5.
	meta := geoMeta(4326, [6]float64{0, 90.0 / 64, 0, 66.5, 0, -66.5 / 64})
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 { return 100 }, meta), 16)

	data, err := e.RenderMapTile(vp, TileID{Matrix: 1, Row: 0, Col: 1}, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	// Bottom-left of the northeast quadrant tile sits inside the footprint,
	// the far east edge does not.
	inside := img.NRGBAAt(0, 15)
	assert.Equal(t, uint8(100), inside.R)
	assert.Equal(t, uint8(255), inside.A)
	assert.Equal(t, uint8(0), img.NRGBAAt(15, 15).A)
}

func TestRenderMapTileOutsideFootprint(t *testing.T) {
	e := newTestEngine(t)
	meta := geoMeta(4326, [6]float64{0, 90.0 / 64, 0, 66.5, 0, -66.5 / 64})
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 { return 100 }, meta), 16)

	// Far western tile never touches the image.
	_, err := e.RenderMapTile(vp, TileID{Matrix: 2, Row: 1, Col: 0}, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsOutOfBounds(err))
}

func TestRenderMapTileRejectsBadAddressAndMissingCRS(t *testing.T) {
	e := newTestEngine(t)
	meta := geoMeta(4326, [6]float64{0, 1, 0, 0, 0, -1})
	vp := injectDataset(e, grayDataset(8, 8, func(x, y int) float64 { return 1 }, meta), 16)

	_, err := e.RenderMapTile(vp, TileID{Matrix: 1, Row: 2, Col: 0}, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsValidation(err))

	bare := injectDataset(e, grayDataset(8, 8, func(x, y int) float64 { return 1 },
		geoMeta(0, [6]float64{0, 1, 0, 0, 0, 1})), 16)
	_, err = e.RenderMapTile(bare, TileID{Matrix: 0, Row: 0, Col: 0}, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsValidation(err))
}

func TestRenderMapTileIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	meta := geoMeta(4326, [6]float64{0, 90.0 / 64, 0, 66.5, 0, -66.5 / 64})
	vp := injectDataset(e, grayDataset(64, 64, func(x, y int) float64 {
		return float64((x + y) % 200)
	}, meta), 16)

	tile := TileID{Matrix: 1, Row: 0, Col: 1}
	first, err := e.RenderMapTile(vp, tile, FormatPNG, models.RangeDRA)
	require.NoError(t, err)
	second, err := e.RenderMapTile(vp, tile, FormatPNG, models.RangeDRA)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCropAndPreview(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(64, 32, func(x, y int) float64 {
		return float64(x % 256)
	}, nil), 16)

	data, err := e.Crop(vp, image.Rect(10, 4, 30, 12), 0, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 20, 8), img.Bounds())
	assert.Equal(t, uint8(10), img.NRGBAAt(0, 0).R)

	data, err = e.Crop(vp, image.Rect(0, 0, 20, 8), 10, 4, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 4), decodePNG(t, data).Bounds())

	_, err = e.Crop(vp, image.Rect(5, 5, 5, 9), 0, 0, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsValidation(err))

	data, err = e.Preview(vp, 16, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	bounds := decodePNG(t, data).Bounds()
	assert.Equal(t, 16, bounds.Dx())
	assert.Equal(t, 8, bounds.Dy())

	_, err = e.Preview(vp, 0, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsValidation(err))
}

func TestEngineOpensFromCacheStore(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(store, "nearest")

	src := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range src.Pix {
		src.Pix[i] = byte(i % 251)
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, src, nil))

	vp := &models.Viewpoint{
		ID:        uuid.New(),
		TileSize:  16,
		Status:    models.StatusReady,
		ObjectKey: "imagery/scene.tif",
	}
	h, err := store.Materialize(vp.ID, vp.ObjectKey)
	require.NoError(t, err)
	_, err = h.Write(buf.Bytes())
	require.NoError(t, err)
	_, err = h.Commit()
	require.NoError(t, err)

	data, err := e.RenderTile(vp, 0, 0, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), decodePNG(t, data).Bounds())

	// After release the handle reopens from disk transparently.
	e.Release(vp.ID)
	_, err = e.RenderTile(vp, 0, 0, 0, FormatPNG, models.RangeNone)
	require.NoError(t, err)

	// Once evicted, the open fails as NotFound.
	e.Release(vp.ID)
	require.NoError(t, store.Evict(vp.ID))
	_, err = e.RenderTile(vp, 0, 0, 0, FormatPNG, models.RangeNone)
	assert.True(t, tserrors.IsNotFound(err))
}

func TestReleaseDuringReadKeepsDatasetUsable(t *testing.T) {
	e := newTestEngine(t)
	vp := injectDataset(e, grayDataset(32, 32, func(x, y int) float64 {
		return 200
	}, nil), 16)

	// A request can hold the shared handle when the viewpoint is deleted out
	// from under it. The read must still complete, not panic.
	ds, err := e.Dataset(vp)
	require.NoError(t, err)
	e.Release(vp.ID)

	grid, clipped, err := ds.ReadWindow(image.Rect(0, 0, 16, 16))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), clipped)
	assert.Equal(t, 200.0, grid.Sample(0, 3, 3))
}

func TestInvertGeoTransformRoundTrip(t *testing.T) {
	gt := [6]float64{85.0, 0.001, 0, 33.0, 0, -0.002}
	inv, err := invertGeoTransform(gt)
	require.NoError(t, err)

	meta := &models.ImageMetadata{GeoTransform: gt}
	c := meta.Apply(120, 40)
	px, py := inv.apply(c[0], c[1])
	assert.InDelta(t, 120, px, 1e-9)
	assert.InDelta(t, 40, py, 1e-9)

	_, err = invertGeoTransform([6]float64{0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}
