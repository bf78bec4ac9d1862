package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/services"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tiles"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// TileHandler serves the tile, crop, preview and OGC tileset routes.
type TileHandler struct {
	Service services.ViewpointService
}

func NewTileHandler(service services.ViewpointService) *TileHandler {
	return &TileHandler{Service: service}
}

// GetTile handles GET /viewpoints/:id/image/tiles/:z/:x/:y.:format.
// @Summary Unwarped image tile
// @Description Renders a tile in source pixel space at pyramid level z
// @Tags image
// @Produce png,jpeg
// @Param id path string true "Viewpoint ID"
// @Param z path int true "Pyramid level"
// @Param x path int true "Tile column"
// @Param y path int true "Tile row"
// @Param format path string true "Output format (png, jpeg, tif)"
// @Param rangeAdjustment query string false "Stretch override (NONE, MINMAX, DRA)"
// @Success 200 {file} binary "Encoded tile"
// @Failure 404 {object} map[string]interface{} "Tile outside the image"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/tiles/{z}/{x}/{y}.{format} [get]
func (h *TileHandler) GetTile(c *fiber.Ctx) error {
	z, x, y, err := tileAddress(c)
	if err != nil {
		return writeError(c, err)
	}
	data, mediaType, err := h.Service.Tile(c.Params("id"), z, x, y,
		c.Params("format"), c.Query("rangeAdjustment"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mediaType)
	return c.Send(data)
}

// GetCrop handles GET /viewpoints/:id/image/crop/:window.:format.
// @Summary Pixel window crop
// @Description Extracts the window minx,miny,maxx,maxy at full resolution
// @Tags image
// @Produce png,jpeg
// @Param id path string true "Viewpoint ID"
// @Param window path string true "Window as minx,miny,maxx,maxy"
// @Param format path string true "Output format (png, jpeg, tif)"
// @Param width query int false "Output width"
// @Param height query int false "Output height"
// @Param rangeAdjustment query string false "Stretch override (NONE, MINMAX, DRA)"
// @Success 200 {file} binary "Encoded crop"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/crop/{window}.{format} [get]
func (h *TileHandler) GetCrop(c *fiber.Ctx) error {
	window, err := parseWindow(c.Params("window"))
	if err != nil {
		return writeError(c, err)
	}
	data, mediaType, err := h.Service.Crop(c.Params("id"), window,
		c.QueryInt("width"), c.QueryInt("height"),
		c.Params("format"), c.Query("rangeAdjustment"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mediaType)
	return c.Send(data)
}

// GetPreview handles GET /viewpoints/:id/image/preview.:format.
// @Summary Image thumbnail
// @Tags image
// @Produce png,jpeg
// @Param id path string true "Viewpoint ID"
// @Param format path string true "Output format (png, jpeg, tif)"
// @Param maxSize query int false "Long-side bound in pixels (default 1024)"
// @Param rangeAdjustment query string false "Stretch override (NONE, MINMAX, DRA)"
// @Success 200 {file} binary "Encoded preview"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/preview.{format} [get]
func (h *TileHandler) GetPreview(c *fiber.Ctx) error {
	maxSize := c.QueryInt("maxSize", 1024)
	data, mediaType, err := h.Service.Preview(c.Params("id"), maxSize,
		c.Params("format"), c.Query("rangeAdjustment"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mediaType)
	return c.Send(data)
}

// ListTileSets handles GET /viewpoints/:id/map/tiles.
// @Summary List tilesets
// @Description Lists the tile matrix sets available for a viewpoint
// @Tags map
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} tiles.TileSetList "Tilesets"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/map/tiles [get]
func (h *TileHandler) ListTileSets(c *fiber.Ctx) error {
	list, err := h.Service.TileSets(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(list)
}

// GetTileSetMetadata handles GET /viewpoints/:id/map/tiles/WebMercatorQuad.
// @Summary WebMercatorQuad tileset metadata
// @Description Tileset description with per-level tile matrix limits
// @Tags map
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} tiles.TileSetMetadata "Tileset metadata"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/map/tiles/WebMercatorQuad [get]
func (h *TileHandler) GetTileSetMetadata(c *fiber.Ctx) error {
	if c.Params("tileMatrixSetId") != tiles.WebMercatorQuadID {
		return writeError(c, tserrors.New(tserrors.KindNotFound,
			"unknown tile matrix set %q", c.Params("tileMatrixSetId")))
	}
	meta, err := h.Service.TileSetMetadata(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(meta)
}

// GetMapTile handles GET /viewpoints/:id/map/tiles/WebMercatorQuad/:z/:x/:y.:format.
// @Summary Orthophoto map tile
// @Description Warps the image into a WebMercatorQuad tile
// @Tags map
// @Produce png,jpeg
// @Param id path string true "Viewpoint ID"
// @Param z path int true "Tile matrix (zoom)"
// @Param x path int true "Tile column"
// @Param y path int true "Tile row"
// @Param format path string true "Output format (png, jpeg, tif)"
// @Param invertY query bool false "Interpret y as TMS south-origin row"
// @Param rangeAdjustment query string false "Stretch override (NONE, MINMAX, DRA)"
// @Success 200 {file} binary "Encoded tile"
// @Failure 404 {object} map[string]interface{} "Tile outside the image footprint"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/map/tiles/WebMercatorQuad/{z}/{x}/{y}.{format} [get]
func (h *TileHandler) GetMapTile(c *fiber.Ctx) error {
	if c.Params("tileMatrixSetId") != tiles.WebMercatorQuadID {
		return writeError(c, tserrors.New(tserrors.KindNotFound,
			"unknown tile matrix set %q", c.Params("tileMatrixSetId")))
	}
	z, x, y, err := tileAddress(c)
	if err != nil {
		return writeError(c, err)
	}
	data, mediaType, err := h.Service.MapTile(c.Params("id"), z, x, y,
		c.QueryBool("invertY"), c.Params("format"), c.Query("rangeAdjustment"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, mediaType)
	return c.Send(data)
}

func tileAddress(c *fiber.Ctx) (z, x, y int, err error) {
	z, err = strconv.Atoi(c.Params("z"))
	if err == nil {
		x, err = strconv.Atoi(c.Params("x"))
	}
	if err == nil {
		y, err = strconv.Atoi(c.Params("y"))
	}
	if err != nil {
		return 0, 0, 0, tserrors.New(tserrors.KindValidation,
			"tile address %s/%s/%s is not numeric", c.Params("z"), c.Params("x"), c.Params("y"))
	}
	return z, x, y, nil
}

func parseWindow(s string) ([4]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]int{}, tserrors.New(tserrors.KindValidation,
			"crop window %q must be minx,miny,maxx,maxy", s)
	}
	var out [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [4]int{}, tserrors.New(tserrors.KindValidation,
				"crop window coordinate %q is not numeric", p)
		}
		out[i] = v
	}
	return out, nil
}
