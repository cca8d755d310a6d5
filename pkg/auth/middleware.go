package auth

import (
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
)

// contextKeyAPIKey is the echo.Context key the authenticated key is
// stored under, mirroring the teacher's securityHeaders-style
// middleware shape (a closure over no server state, returning a plain
// echo.MiddlewareFunc).
const contextKeyAPIKey = "agentlens.auth.apikey"

// Middleware returns echo middleware that authenticates every request
// against ks: extracts the Bearer token, looks up the key, and (on
// success) stashes it on the context for handlers and RequireScope to
// read via FromContext. Missing or invalid keys short-circuit with a
// KindAuth error before next is invoked.
func Middleware(ks KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			raw := bearerToken(c.Request().Header.Get("Authorization"))
			key, err := Authenticate(c.Request().Context(), ks, raw)
			if err != nil {
				return writeAuthError(c, apierrors.Auth("missing or invalid API key"))
			}
			c.Set(contextKeyAPIKey, key)
			return next(c)
		}
	}
}

// RequireScope returns middleware that rejects the request with a
// KindAuthorization error unless the context's authenticated key
// carries want. Must run after Middleware.
func RequireScope(want Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			key, ok := FromContext(c)
			if !ok {
				return writeAuthError(c, apierrors.Auth("missing or invalid API key"))
			}
			if !key.HasScope(want) {
				return writeAuthError(c, apierrors.Authorization("scope '"+string(want)+"' required"))
			}
			return next(c)
		}
	}
}

// FromContext retrieves the authenticated key stashed by Middleware.
func FromContext(c *echo.Context) (*APIKey, bool) {
	key, ok := c.Get(contextKeyAPIKey).(*APIKey)
	return key, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func writeAuthError(c *echo.Context, err *apierrors.Error) error {
	return c.JSON(err.Status(), err.Envelope())
}
