package worker

import (
	"encoding/json"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tiles"
)

// writeSidecars persists the derived artifacts served by the image metadata
// endpoints: the probed metadata, the pixel bounds, and a GeoJSON footprint.
func (p *Pool) writeSidecars(vp *models.Viewpoint, meta *models.ImageMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := p.store.WriteSidecar(vp.ID, cache.SidecarMetadata, metaJSON); err != nil {
		return err
	}

	boundsJSON, err := json.Marshal(map[string]interface{}{
		"bounds": [4]int{0, 0, meta.Size[0], meta.Size[1]},
	})
	if err != nil {
		return err
	}
	if err := p.store.WriteSidecar(vp.ID, cache.SidecarBounds, boundsJSON); err != nil {
		return err
	}

	infoJSON, err := json.Marshal(footprint(vp, meta))
	if err != nil {
		return err
	}
	return p.store.WriteSidecar(vp.ID, cache.SidecarInfo, infoJSON)
}

// footprint builds a GeoJSON feature of the image outline in WGS84. Sources
// without georeferencing get a null geometry rather than a fabricated one.
func footprint(vp *models.Viewpoint, meta *models.ImageMetadata) map[string]interface{} {
	feature := map[string]interface{}{
		"type":     "Feature",
		"geometry": nil,
		"properties": map[string]interface{}{
			"viewpoint_id":   vp.ID,
			"viewpoint_name": vp.Name,
			"width":          meta.Size[0],
			"height":         meta.Size[1],
			"driver":         meta.DriverName,
		},
	}
	if meta.CRS.EPSG != 4326 && meta.CRS.EPSG != 3857 {
		return feature
	}

	toLonLat := func(c models.Coordinate) [2]float64 {
		if meta.CRS.EPSG == 3857 {
			lon, lat := tiles.MercatorToLonLat(c[0], c[1])
			return [2]float64{lon, lat}
		}
		return [2]float64{c[0], c[1]}
	}
	ul := toLonLat(meta.Corners.UpperLeft)
	ur := toLonLat(meta.Corners.UpperRight)
	lr := toLonLat(meta.Corners.LowerRight)
	ll := toLonLat(meta.Corners.LowerLeft)
	feature["geometry"] = map[string]interface{}{
		"type":        "Polygon",
		"coordinates": [][][2]float64{{ul, ur, lr, ll, ul}},
	}
	return feature
}
