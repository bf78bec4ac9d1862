package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// statusFor maps the error taxonomy onto HTTP status codes. OutOfBounds maps
// to 404: a tile address outside the image footprint is a resource that does
// not exist, never an empty image.
func statusFor(kind tserrors.Kind) int {
	switch kind {
	case tserrors.KindValidation, tserrors.KindUnsupportedFormat:
		return fiber.StatusBadRequest
	case tserrors.KindNotFound, tserrors.KindOutOfBounds:
		return fiber.StatusNotFound
	case tserrors.KindConflict, tserrors.KindNotReady:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders the machine-readable error envelope.
func writeError(c *fiber.Ctx, err error) error {
	kind := tserrors.KindOf(err)
	message := err.Error()
	var te *tserrors.Error
	if errors.As(err, &te) {
		message = te.Message
	}
	status := statusFor(kind)
	if status == fiber.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": true, "kind": string(kind), "message": message,
	})
}
