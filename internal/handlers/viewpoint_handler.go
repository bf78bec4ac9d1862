package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/services"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// ViewpointHandler serves the viewpoint lifecycle and image metadata routes.
type ViewpointHandler struct {
	Service services.ViewpointService
}

func NewViewpointHandler(service services.ViewpointService) *ViewpointHandler {
	return &ViewpointHandler{Service: service}
}

// CreateViewpoint handles POST /viewpoints.
// @Summary Register a new viewpoint
// @Description Registers a cloud-stored image and schedules its ingestion
// @Tags viewpoints
// @Accept json
// @Produce json
// @Param request body models.CreateViewpointRequest true "Viewpoint to create"
// @Success 201 {object} models.Viewpoint "Viewpoint accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /viewpoints [post]
func (h *ViewpointHandler) CreateViewpoint(c *fiber.Ctx) error {
	var req models.CreateViewpointRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, tserrors.Wrap(err, tserrors.KindValidation, "malformed request body"))
	}
	vp, err := h.Service.Create(&req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(vp)
}

// ListViewpoints handles GET /viewpoints.
// @Summary List viewpoints
// @Description Lists registered viewpoints, optionally filtered by status
// @Tags viewpoints
// @Produce json
// @Param status query string false "Status filter (REQUESTED, DOWNLOADING, READY, FAILED, DELETED)"
// @Success 200 {array} models.ViewpointSummary "Viewpoints"
// @Failure 400 {object} map[string]interface{} "Unknown status filter"
// @Router /viewpoints [get]
func (h *ViewpointHandler) ListViewpoints(c *fiber.Ctx) error {
	list, err := h.Service.List(c.Query("status"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(list)
}

// GetViewpoint handles GET /viewpoints/:id.
// @Summary Describe a viewpoint
// @Tags viewpoints
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} models.Viewpoint "Viewpoint"
// @Failure 404 {object} map[string]interface{} "Unknown or deleted viewpoint"
// @Router /viewpoints/{id} [get]
func (h *ViewpointHandler) GetViewpoint(c *fiber.Ctx) error {
	vp, err := h.Service.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(vp)
}

// DeleteViewpoint handles DELETE /viewpoints/:id.
// @Summary Delete a viewpoint
// @Description Deletes a viewpoint and reclaims its cached imagery; safe to repeat
// @Tags viewpoints
// @Param id path string true "Viewpoint ID"
// @Success 204 "Deleted"
// @Failure 400 {object} map[string]interface{} "Invalid viewpoint id"
// @Router /viewpoints/{id} [delete]
func (h *ViewpointHandler) DeleteViewpoint(c *fiber.Ctx) error {
	if err := h.Service.Delete(c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMetadata handles GET /viewpoints/:id/image/metadata.
// @Summary Image metadata
// @Description CRS, geotransform, size, corner coordinates and band layout
// @Tags image
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} models.ImageMetadata "Metadata"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/metadata [get]
func (h *ViewpointHandler) GetMetadata(c *fiber.Ctx) error {
	raw, err := h.Service.Metadata(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// GetBounds handles GET /viewpoints/:id/image/bounds.
// @Summary Image pixel bounds
// @Tags image
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} map[string]interface{} "Pixel bounds [0,0,width,height]"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/bounds [get]
func (h *ViewpointHandler) GetBounds(c *fiber.Ctx) error {
	raw, err := h.Service.Bounds(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// GetInfo handles GET /viewpoints/:id/image/info.
// @Summary Image footprint
// @Description GeoJSON feature of the image outline in WGS84
// @Tags image
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} map[string]interface{} "GeoJSON feature"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/info [get]
func (h *ViewpointHandler) GetInfo(c *fiber.Ctx) error {
	raw, err := h.Service.Info(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// GetStatistics handles GET /viewpoints/:id/image/statistics.
// @Summary Image statistics
// @Description Per-band min/max/mean/stddev and a 256-bin histogram
// @Tags image
// @Produce json
// @Param id path string true "Viewpoint ID"
// @Success 200 {object} models.ImageStatistics "Statistics"
// @Failure 409 {object} map[string]interface{} "Viewpoint not ready"
// @Router /viewpoints/{id}/image/statistics [get]
func (h *ViewpointHandler) GetStatistics(c *fiber.Ctx) error {
	st, err := h.Service.Statistics(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}
