package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisErrors counts failed Redis commands by command name.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "welcomemat_redis_errors_total",
	Help: "Total number of failed Redis commands",
}, []string{"command"})

var (
	fiberProm     *fiberprometheus.FiberPrometheus
	fiberPromOnce sync.Once
)

// InitMetrics returns the process-wide HTTP metrics collector, creating it on first use.
// The underlying collectors register with the default registry, which rejects duplicates,
// so every server instance in a process shares one.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	fiberPromOnce.Do(func() {
		fiberProm = fiberprometheus.New(serviceName)
	})
	return fiberProm
}

// MetricsMiddleware records request counts and latencies.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
