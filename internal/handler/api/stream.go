package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamHandler mounts the decision websocket.
type StreamHandler struct {
	hub http.Handler
}

func NewStreamHandler(hub http.Handler) *StreamHandler {
	return &StreamHandler{hub: hub}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", echo.WrapHandler(h.hub))
}
