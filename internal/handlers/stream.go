package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/Brownie44l1/asl-api/internal/classifier"
	"github.com/Brownie44l1/asl-api/internal/middleware"
	"github.com/Brownie44l1/asl-api/pkg/log"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamWriteTimeout = 10 * time.Second

	clientIPKey = "client_ip"
)

func (h *Handler) upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals(clientIPKey, c.IP())
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// PredictStream answers every text frame holding a predict request with a
// prediction or an error object. Errors do not close the stream. Every frame
// spends a token from the client's rate limit bucket.
func (h *Handler) PredictStream(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	clientIP, _ := c.Locals(clientIPKey).(string)
	entry := h.log.WithField(log.RequestIDKey, requestID)

	entry.Info("Prediction stream connected")
	defer entry.Info("Prediction stream disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			entry.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			entry.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.Errorf("Prediction stream error: %v", err)
			}
			break
		}

		reply := h.streamReply(requestID, clientIP, messageType, message)

		if err := c.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			entry.Errorf("Error setting write deadline: %v", err)
			break
		}
		if err := c.WriteJSON(reply); err != nil {
			entry.Errorf("Error writing JSON response: %v", err)
			break
		}
	}
}

var errUnsupportedFrame = fmt.Errorf("%w: frames must be JSON text", classifier.ErrInvalidInput)

// streamReply returns the value to send back for one received frame.
func (h *Handler) streamReply(requestID, clientIP string, messageType int, message []byte) any {
	if !h.middleware.Allow(clientIP) {
		return fiber.Map{"error": "Too many requests", "code": "RATE_LIMITED"}
	}
	if messageType != websocket.TextMessage {
		_, body := h.errors.Payload(requestID, errUnsupportedFrame, "/predict/ws", "read_frame")
		return body
	}
	return h.predictFrame(requestID, message)
}

// predictFrame classifies one frame and returns the value to send back.
func (h *Handler) predictFrame(requestID string, message []byte) any {
	req, err := h.decodeRequest(message)
	if err != nil {
		_, body := h.errors.Payload(requestID, err, "/predict/ws", "parse_frame")
		return body
	}

	ctx, cancel := context.WithTimeout(log.ContextWithRequestID(context.Background(), requestID), h.requestTimeout)
	defer cancel()

	result, err := h.classifier.Classify(ctx, req.Keypoints)
	if err != nil {
		if ctx.Err() != nil {
			return fiber.Map{"error": "Request timed out", "code": "TIMEOUT"}
		}
		_, body := h.errors.Payload(requestID, err, "/predict/ws", "classify")
		return body
	}
	return result
}
