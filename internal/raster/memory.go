package raster

import (
	"image"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// MemoryDataset serves windowed reads out of a fully decoded grid. Both file
// adapters decode on open and delegate here; tests construct it directly.
type MemoryDataset struct {
	meta *models.ImageMetadata
	grid *Grid
}

func NewMemoryDataset(meta *models.ImageMetadata, grid *Grid) *MemoryDataset {
	return &MemoryDataset{meta: meta, grid: grid}
}

func (d *MemoryDataset) Metadata() *models.ImageMetadata { return d.meta }

func (d *MemoryDataset) ReadWindow(window image.Rectangle) (*Grid, image.Rectangle, error) {
	extent := image.Rect(0, 0, d.grid.Width, d.grid.Height)
	clipped := window.Intersect(extent)
	if clipped.Empty() {
		return nil, image.Rectangle{}, tserrors.New(tserrors.KindOutOfBounds,
			"window %v lies outside image extent %v", window, extent)
	}
	return d.grid.Crop(clipped), clipped, nil
}

// Close is a no-op. A reader that obtained the dataset before a concurrent
// close may still be mid-read; the grid is plain heap memory and is freed
// once the last reference drops.
func (d *MemoryDataset) Close() error { return nil }
