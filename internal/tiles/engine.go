package tiles

import (
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// Engine renders tiles, crops and previews for READY viewpoints. Open read
// handles live in an arena keyed by viewpoint id: opened lazily on the first
// request, shared by concurrent readers, and closed on eviction. The engine
// never owns a viewpoint record; it only looks one up by id.
type Engine struct {
	store       *cache.Store
	filter      imaging.ResampleFilter
	geoBilinear bool

	mu   sync.RWMutex
	open map[uuid.UUID]raster.Dataset
}

// NewEngine creates a tile engine using the named resampling method
// (nearest, bilinear or cubic).
func NewEngine(store *cache.Store, resampling string) *Engine {
	e := &Engine{
		store:       store,
		filter:      imaging.Linear,
		geoBilinear: true,
		open:        make(map[uuid.UUID]raster.Dataset),
	}
	switch strings.ToLower(resampling) {
	case "nearest":
		e.filter = imaging.NearestNeighbor
		e.geoBilinear = false
	case "cubic":
		e.filter = imaging.CatmullRom
	}
	return e
}

// Dataset returns the shared read handle for a READY viewpoint, opening it
// on first use. The engine retains ownership; callers must not close it.
func (e *Engine) Dataset(vp *models.Viewpoint) (raster.Dataset, error) {
	if vp.Status != models.StatusReady {
		return nil, tserrors.New(tserrors.KindNotReady,
			"viewpoint %s is %s; tiles require READY", vp.ID, vp.Status)
	}

	e.mu.RLock()
	ds, ok := e.open[vp.ID]
	e.mu.RUnlock()
	if ok {
		return ds, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ds, ok := e.open[vp.ID]; ok {
		return ds, nil
	}
	path, err := e.store.Open(vp.ID, vp.ObjectKey)
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.KindNotFound, "no cached image for viewpoint")
	}
	ds, err = raster.Open(path)
	if err != nil {
		return nil, err
	}
	e.open[vp.ID] = ds
	logrus.WithField("viewpoint_id", vp.ID).Debug("opened raster read handle")
	return ds, nil
}

// Release forgets the read handle for a viewpoint. Called on delete/evict;
// releasing an id with no open handle is a no-op. Readers that already hold
// the dataset finish their reads against it; the backing memory is reclaimed
// once the last of them drops it.
func (e *Engine) Release(id uuid.UUID) {
	e.mu.Lock()
	ds, ok := e.open[id]
	delete(e.open, id)
	e.mu.Unlock()
	if ok {
		ds.Close()
	}
}

// RenderTile produces an unwarped tile: a pixel window cropped straight from
// source pixel space at pyramid level z, preserving the original geometry.
func (e *Engine) RenderTile(vp *models.Viewpoint, z, x, y int, format Format, adjustment models.RangeAdjustment) ([]byte, error) {
	if z < 0 || x < 0 || y < 0 {
		return nil, tserrors.New(tserrors.KindValidation,
			"tile address (%d/%d/%d) must be non-negative", z, x, y)
	}
	ds, err := e.Dataset(vp)
	if err != nil {
		return nil, err
	}

	srcTile := vp.TileSize << uint(z)
	window := image.Rect(x*srcTile, y*srcTile, (x+1)*srcTile, (y+1)*srcTile)
	grid, clipped, err := ds.ReadWindow(window)
	if err != nil {
		return nil, err
	}

	scale := 1 << uint(z)
	rendered := toImage(grid, nil, adjustment)
	dw := maxInt(1, clipped.Dx()/scale)
	dh := maxInt(1, clipped.Dy()/scale)
	resized := imaging.Resize(rendered, dw, dh, e.filter)

	var out image.Image = resized
	if clipped != window {
		// Partial coverage: paste onto a transparent tile at the offset the
		// clipped window occupies within the requested one.
		tile := imaging.New(vp.TileSize, vp.TileSize, color.NRGBA{})
		offset := image.Pt((clipped.Min.X-window.Min.X)/scale, (clipped.Min.Y-window.Min.Y)/scale)
		out = imaging.Paste(tile, resized, offset)
	}
	return Encode(out, format)
}

// RenderMapTile warps the source image into an orthophoto aligned to a
// WebMercatorQuad tile. Out-of-extent pixels are transparent; a tile with no
// source coverage at all is an OutOfBounds error, never a blank image.
func (e *Engine) RenderMapTile(vp *models.Viewpoint, tile TileID, format Format, adjustment models.RangeAdjustment) ([]byte, error) {
	if !tile.Valid() {
		return nil, tserrors.New(tserrors.KindValidation,
			"tile address (%d/%d/%d) does not exist in %s", tile.Matrix, tile.Row, tile.Col, WebMercatorQuadID)
	}
	ds, err := e.Dataset(vp)
	if err != nil {
		return nil, err
	}
	meta := ds.Metadata()
	geographic, err := crsIsGeographic(meta)
	if err != nil {
		return nil, err
	}

	bounds := tile.Bounds()
	ts := vp.TileSize
	span := bounds.MaxX() - bounds.MinX()

	// toSourcePixel maps a mercator coordinate into source pixel space.
	inv, err := invertGeoTransform(meta.GeoTransform)
	if err != nil {
		return nil, err
	}
	toSourcePixel := func(mx, my float64) (float64, float64) {
		gx, gy := mx, my
		if geographic {
			gx, gy = MercatorToLonLat(mx, my)
		}
		return inv.apply(gx, gy)
	}

	// Bound the source window by the tile's corners plus a margin for the
	// interpolation kernel.
	minPX, minPY := math.Inf(1), math.Inf(1)
	maxPX, maxPY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{
		{bounds.MinX(), bounds.MinY()}, {bounds.MinX(), bounds.MaxY()},
		{bounds.MaxX(), bounds.MinY()}, {bounds.MaxX(), bounds.MaxY()},
	} {
		px, py := toSourcePixel(c[0], c[1])
		minPX, minPY = math.Min(minPX, px), math.Min(minPY, py)
		maxPX, maxPY = math.Max(maxPX, px), math.Max(maxPY, py)
	}
	window := image.Rect(
		int(math.Floor(minPX))-1, int(math.Floor(minPY))-1,
		int(math.Ceil(maxPX))+2, int(math.Ceil(maxPY))+2,
	)
	grid, clipped, err := ds.ReadWindow(window)
	if err != nil {
		return nil, err
	}

	out := raster.NewGrid(ts, ts, grid.SampleType, interpsOf(grid))
	valid := make([]bool, ts*ts)
	covered := false
	for py := 0; py < ts; py++ {
		my := bounds.MaxY() - (float64(py)+0.5)*span/float64(ts)
		for px := 0; px < ts; px++ {
			mx := bounds.MinX() + (float64(px)+0.5)*span/float64(ts)
			sx, sy := toSourcePixel(mx, my)
			if sx < 0 || sy < 0 || sx >= float64(meta.Size[0]) || sy >= float64(meta.Size[1]) {
				continue
			}
			lx := sx - float64(clipped.Min.X)
			ly := sy - float64(clipped.Min.Y)
			for b := 0; b < grid.BandCount(); b++ {
				var v float64
				if e.geoBilinear {
					v = grid.Bilinear(b, lx, ly)
				} else {
					v = grid.Nearest(b, lx, ly)
				}
				out.Set(b, px, py, v)
			}
			valid[py*ts+px] = true
			covered = true
		}
	}
	if !covered {
		return nil, tserrors.New(tserrors.KindOutOfBounds,
			"tile %d/%d/%d lies outside the image extent", tile.Matrix, tile.Row, tile.Col)
	}
	return Encode(toImage(out, valid, adjustment), format)
}

// Crop extracts an arbitrary full-resolution pixel window, optionally
// resized to width x height.
func (e *Engine) Crop(vp *models.Viewpoint, window image.Rectangle, width, height int, format Format, adjustment models.RangeAdjustment) ([]byte, error) {
	if window.Empty() {
		return nil, tserrors.New(tserrors.KindValidation, "crop window %v is empty", window)
	}
	ds, err := e.Dataset(vp)
	if err != nil {
		return nil, err
	}
	grid, _, err := ds.ReadWindow(window)
	if err != nil {
		return nil, err
	}
	rendered := toImage(grid, nil, adjustment)
	var out image.Image = rendered
	if width > 0 || height > 0 {
		out = imaging.Resize(rendered, width, height, e.filter)
	}
	return Encode(out, format)
}

// Preview renders a thumbnail bounded by maxSize on the long side.
func (e *Engine) Preview(vp *models.Viewpoint, maxSize int, format Format, adjustment models.RangeAdjustment) ([]byte, error) {
	if maxSize <= 0 {
		return nil, tserrors.New(tserrors.KindValidation, "preview maxSize must be positive")
	}
	ds, err := e.Dataset(vp)
	if err != nil {
		return nil, err
	}
	meta := ds.Metadata()
	grid, _, err := ds.ReadWindow(image.Rect(0, 0, meta.Size[0], meta.Size[1]))
	if err != nil {
		return nil, err
	}
	rendered := toImage(grid, nil, adjustment)
	out := imaging.Fit(rendered, maxSize, maxSize, e.filter)
	return Encode(out, format)
}

// affine is an inverted geotransform.
type affine struct {
	originX, originY float64
	m                [4]float64
}

func (a affine) apply(gx, gy float64) (float64, float64) {
	dx := gx - a.originX
	dy := gy - a.originY
	return a.m[0]*dx + a.m[1]*dy, a.m[2]*dx + a.m[3]*dy
}

func invertGeoTransform(gt [6]float64) (affine, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return affine{}, tserrors.New(tserrors.KindValidation, "degenerate geotransform")
	}
	return affine{
		originX: gt[0],
		originY: gt[3],
		m:       [4]float64{gt[5] / det, -gt[2] / det, -gt[4] / det, gt[1] / det},
	}, nil
}

// crsIsGeographic reports whether source coordinates are degrees (true) or
// already Web Mercator meters (false).
func crsIsGeographic(meta *models.ImageMetadata) (bool, error) {
	switch meta.CRS.EPSG {
	case 4326:
		return true, nil
	case 3857:
		return false, nil
	case 0:
		return false, tserrors.New(tserrors.KindValidation,
			"image has no coordinate reference system; map tiles unavailable")
	default:
		return false, tserrors.New(tserrors.KindValidation,
			"unsupported source CRS EPSG:%d", meta.CRS.EPSG)
	}
}

func interpsOf(g *raster.Grid) []models.ColorInterpretation {
	out := make([]models.ColorInterpretation, g.BandCount())
	for i := range out {
		out[i] = g.Interpretation(i)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
