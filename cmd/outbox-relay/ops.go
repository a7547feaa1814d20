package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackcatacademy/blackcat-database/metrics"
)

const healthTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

type breakerState interface {
	State() string
}

func newOpsRouter(db pinger, gatherer prometheus.Gatherer, breaker breakerState) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		body := gin.H{"dispatcher": breaker.State()}
		if err := db.PingContext(ctx); err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ok"
		c.JSON(http.StatusOK, body)
	})

	return r
}
