package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/asl-api/internal/classifier"
	"github.com/Brownie44l1/asl-api/pkg/log"
	"github.com/Brownie44l1/asl-api/pkg/response"
)

type ErrorHandler struct {
	logger *logrus.Logger
}

func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Payload maps err to a status and a JSON body, logging it on the way.
func (h *ErrorHandler) Payload(requestID string, err error, path string, operation string) (int, fiber.Map) {
	fields := log.Fields{
		log.RequestIDKey: requestID,
		"error":          err.Error(),
		"path":           path,
		"operation":      operation,
	}

	switch {
	case errors.Is(err, classifier.ErrInvalidInput):
		h.logger.WithFields(fields).Warn("Rejected invalid input")
		return fiber.StatusBadRequest, fiber.Map{
			"error": err.Error(),
			"code":  "INVALID_INPUT",
		}

	case errors.Is(err, classifier.ErrInferenceFailure):
		traceID := log.ErrorWithTraceID(h.logger, fields, "Inference failed")
		return fiber.StatusInternalServerError, fiber.Map{
			"error":    "Prediction failed",
			"code":     "INFERENCE_FAILURE",
			"trace_id": traceID,
		}
	}

	if code := response.Code(err, 0); code != 0 {
		h.logger.WithFields(fields).Warn("Operation failed with error response")
		return code, fiber.Map{"error": err.Error()}
	}

	traceID := log.ErrorWithTraceID(h.logger, fields, "Unexpected error")
	return fiber.StatusInternalServerError, fiber.Map{
		"error":    "An unexpected error occurred",
		"trace_id": traceID,
	}
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, operation string) error {
	status, body := h.Payload(requestID, err, c.Path(), operation)
	return c.Status(status).JSON(body)
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx, requestID string) error {
	h.logger.WithFields(log.Fields{
		log.RequestIDKey: requestID,
		"path":           c.Path(),
	}).Warn("Request timed out")
	return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{
		"error": utils.StatusMessage(fiber.StatusRequestTimeout),
		"code":  "TIMEOUT",
	})
}
