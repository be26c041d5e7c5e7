package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// corsMethods are the only verbs the decision API serves.
var corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")

// CORSConfig is the cors block of the server config.
type CORSConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// AllowOrigins entries are exact origins, "*", or "*.example.com" suffix patterns.
	AllowOrigins []string      `yaml:"allow_origins"`
	AllowHeaders []string      `yaml:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" default:"10m"`
}

// DefaultCORSHeaders are sent when AllowHeaders is empty.
var DefaultCORSHeaders = []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID}

// CORS answers preflights and decorates responses for allowed origins.
// An empty AllowOrigins list allows every origin.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}
	allowHeaders := strings.Join(headers, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge / time.Second))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if origin == "" {
				return next(c)
			}
			allowed, wildcard := matchOrigin(cfg.AllowOrigins, origin)
			if !allowed {
				return next(c)
			}
			if wildcard {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			}

			preflight := c.Request().Method == http.MethodOptions &&
				c.Request().Header.Get(echo.HeaderAccessControlRequestMethod) != ""
			if !preflight {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			if cfg.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, maxAge)
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}

// matchOrigin reports whether origin is allowed and whether it matched "*".
func matchOrigin(patterns []string, origin string) (allowed, wildcard bool) {
	if len(patterns) == 0 {
		return true, true
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			return true, true
		case strings.EqualFold(p, origin):
			return true, false
		case strings.HasPrefix(p, "*."):
			host := origin
			if i := strings.Index(host, "://"); i >= 0 {
				host = host[i+3:]
			}
			if strings.HasSuffix(strings.ToLower(host), strings.ToLower(p[1:])) {
				return true, false
			}
		}
	}
	return false, false
}
