package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const userIDContextKey = "userID"

// requireUser resolves the caller before the handler runs. Without an
// Authenticator every request belongs to the local user. EventSource cannot
// set headers, so GET requests may pass the token as ?token=.
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth == nil {
				c.Set(userIDContextKey, localUserID)
				return next(c)
			}
			req := c.Request()
			header := req.Header.Get(echo.HeaderAuthorization)
			if header == "" && req.Method == http.MethodGet {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}

			start := time.Now()
			id, err := auth.UserIDFromAuthHeader(header)
			m := metricsFrom(c)
			if m != nil {
				m.ObserveAuth(time.Since(start))
			}
			if err != nil {
				if m != nil {
					m.SetErrorStage("auth")
				}
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDContextKey, id)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	if id, ok := c.Get(userIDContextKey).(string); ok && id != "" {
		return id
	}
	return localUserID
}

// parseBearer extracts a compact JWT from an Authorization value. The scheme
// is matched case-insensitively; anything but three dot-separated segments
// is refused before it reaches the JWT parser.
func parseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
