package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Register mounts the API surface under /api/v1.
func Register(app *fiber.App, vh *ViewpointHandler, th *TileHandler) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api.Post("/viewpoints", vh.CreateViewpoint)
	api.Get("/viewpoints", vh.ListViewpoints)

	vp := api.Group("/viewpoints/:id")
	vp.Get("/", vh.GetViewpoint)
	vp.Delete("/", vh.DeleteViewpoint)

	vp.Get("/image/metadata", vh.GetMetadata)
	vp.Get("/image/bounds", vh.GetBounds)
	vp.Get("/image/info", vh.GetInfo)
	vp.Get("/image/statistics", vh.GetStatistics)
	vp.Get("/image/tiles/:z/:x/:y.:format", th.GetTile)
	vp.Get("/image/crop/:window.:format", th.GetCrop)
	vp.Get("/image/preview.:format", th.GetPreview)

	vp.Get("/map/tiles", th.ListTileSets)
	vp.Get("/map/tiles/:tileMatrixSetId", th.GetTileSetMetadata)
	vp.Get("/map/tiles/:tileMatrixSetId/:z/:x/:y.:format", th.GetMapTile)
}
