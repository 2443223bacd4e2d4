package internalhttp

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		r := c.Request()
		ip, ipErr := getIP(r)
		if ipErr != nil {
			log.Errorf("failed to get client IP: %v", ipErr)
		}
		log.WithField("ip", ip).WithField("method", r.Method).WithField("path", r.URL).
			WithField("HTTP version", r.Proto).WithField("user-agent", r.Header.Get("user-agent")).
			WithField("status", c.Response().Status).
			WithField("latency", time.Since(start)).
			Info("http request processed")
		return nil
	}
}
