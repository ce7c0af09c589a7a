package middleware

import (
	"strings"
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

func LoggingMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		zlog.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}

// AuthMiddleware trusts the identity established upstream (the auth
// protocol itself is delegated): the authenticated user id arrives as a
// bearer token or X-User-ID header. Requests without one stay anonymous;
// handlers that need a user reject them.
func AuthMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		uid := c.GetHeader("X-User-ID")
		if uid == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				uid = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	}
}
