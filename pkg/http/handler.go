package http

import "github.com/labstack/echo/v4"

// Handler registers its routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Handlers registers several handlers as one.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}
