package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/platform/metrics"
)

// Metrics records request counts, latency and in-flight requests. The path
// label is the route template ("/referrals/:id") so ids do not explode label
// cardinality; unmatched routes are grouped under "unmatched".
func Metrics(collector *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if collector == nil {
			return next
		}
		return func(c echo.Context) error {
			collector.InFlightGauge.Inc()
			defer collector.InFlightGauge.Dec()

			start := time.Now()
			err := next(c)

			path := c.Path()
			var he *echo.HTTPError
			if path == "" || (errors.As(err, &he) && (he == echo.ErrNotFound || he == echo.ErrMethodNotAllowed)) {
				path = "unmatched"
			}
			status := strconv.Itoa(responseStatus(c, err))
			method := c.Request().Method

			collector.RequestsTotal.WithLabelValues(method, path, status).Inc()
			collector.RequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
