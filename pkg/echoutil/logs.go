// Package echoutil adapts the status API's echo.Echo server to the same
// zap.SugaredLogger the rest of the pipeline logs through, instead of
// echo's own gommon logger.
package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

// NewRequestLogger returns middleware that logs one structured line per
// request/response pair through log, replacing the teacher's
// c.Logger().Infof call sites with zap's Infow/Errorw so status API access
// logs share a sink with the supervisor's own logging.
func NewRequestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			method := c.Request().Method
			path := c.Request().URL.Path
			start := time.Now()

			err := next(c)

			fields := []any{
				"method", method, "path", path,
				"status", c.Response().Status,
				"duration", time.Since(start),
			}
			if err != nil {
				log.Errorw("request failed", append(fields, "error", err)...)
			} else {
				log.Infow("request", fields...)
			}
			return err
		}
	}
}

// SetLevel maps the pipeline's configured log level onto echo's own
// logger, which still governs framework-internal messages (panics,
// recovered errors) that fall outside NewRequestLogger's per-request hook.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info", "":
		e.Logger.SetLevel(log.INFO)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel %q, falling back to warn", loglevel)
	}
}
