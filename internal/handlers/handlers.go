package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/asl-api/internal/classifier"
	"github.com/Brownie44l1/asl-api/internal/middleware"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/Brownie44l1/asl-api/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Classifier interface {
	Classify(ctx context.Context, raw []any) (*classifier.Prediction, error)
}

// ModelInfo is what the service reports about its loaded artifacts.
type ModelInfo struct {
	Model  model.Metadata
	Labels []string
}

type Handler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	classifier     Classifier
	info           ModelInfo
	requestTimeout time.Duration
	errors         *ErrorHandler
}

func NewHandler(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	classifier Classifier,
	info ModelInfo,
	requestTimeout time.Duration,
) *Handler {
	return &Handler{
		log:            log,
		validator:      validator,
		middleware:     middleware,
		classifier:     classifier,
		info:           info,
		requestTimeout: requestTimeout,
		errors:         NewErrorHandler(log),
	}
}

func (h *Handler) Start(srv fiber.Router) {
	srv.Get("/", h.Root)
	srv.Get("/health", h.Health)
	srv.Get("/labels", h.Labels)
	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)

	srv.Use("/predict/ws", h.upgradeOnly)
	srv.Get("/predict/ws", h.middleware.NewRateLimiter, websocket.New(h.PredictStream))
}

func (h *Handler) Root(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": "ASL backend running"})
}

func (h *Handler) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status":  "healthy",
		"model":   h.info.Model,
		"classes": len(h.info.Labels),
	})
}

func (h *Handler) Labels(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"labels": h.info.Labels})
}

func (h *Handler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(log.ContextWithRequestID(ctx.UserContext(), requestID), h.requestTimeout)
	defer cancel()

	req, err := h.decodeRequest(ctx.Body())
	if err != nil {
		return h.errors.Handle(ctx, requestID, err, "parse_request_body")
	}

	result, err := h.classifier.Classify(c, req.Keypoints)
	if err != nil {
		if c.Err() != nil {
			return h.errors.HandleRequestTimeout(ctx, requestID)
		}
		return h.errors.Handle(ctx, requestID, err, "classify")
	}

	log.WithRequestID(h.log, c).WithFields(log.Fields{
		"prediction": result.Label,
		"confidence": result.Confidence,
	}).Debug("Prediction served")

	return ctx.Status(fiber.StatusOK).JSON(result)
}

// decodeRequest parses a predict body. Content-Type is not enforced.
func (h *Handler) decodeRequest(body []byte) (*classifier.PredictionRequest, error) {
	var req classifier.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: request body must be a JSON object with a keypoints array", classifier.ErrInvalidInput)
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: keypoints field is required", classifier.ErrInvalidInput)
	}
	return &req, nil
}
