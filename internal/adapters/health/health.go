// Package health reports process liveness and dependency readiness over
// HTTP and the standard gRPC health service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check probes one dependency. A nil error means it is usable.
type Check func(ctx context.Context) error

type check struct {
	name string
	fn   Check
}

// Monitor runs the registered checks periodically and publishes the result.
// Every check is exposed as a gRPC service of the same name; the empty
// service name carries the overall status.
type Monitor struct {
	Interval time.Duration
	Service  string

	checks []check
	grpc   *grpchealth.Server

	mu      sync.RWMutex
	results map[string]error
	probed  bool
}

func NewMonitor(service string, interval time.Duration) *Monitor {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		Interval: interval,
		Service:  service,
		grpc:     hs,
		results:  make(map[string]error),
	}
}

func (m *Monitor) Add(name string, fn Check) {
	m.checks = append(m.checks, check{name: name, fn: fn})
	m.grpc.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
}

// RegisterGRPC installs the health service on s.
func (m *Monitor) RegisterGRPC(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.grpc)
}

// Run probes until ctx ends, then marks every service as not serving.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.grpc.Shutdown()
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs every check once.
func (m *Monitor) Probe(ctx context.Context) {
	results := make(map[string]error, len(m.checks))
	overall := healthpb.HealthCheckResponse_SERVING
	for _, c := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.Interval)
		err := c.fn(cctx)
		cancel()
		results[c.name] = err

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
		}
		m.grpc.SetServingStatus(c.name, status)
	}
	m.grpc.SetServingStatus("", overall)

	m.mu.Lock()
	for name, err := range results {
		if prev, ok := m.results[name]; !ok || (prev == nil) != (err == nil) {
			if err != nil {
				log.Warn().Str("module", "adapters.health").Str("check", name).Err(err).Msg("dependency down")
			} else {
				log.Info().Str("module", "adapters.health").Str("check", name).Msg("dependency up")
			}
		}
	}
	m.results = results
	m.probed = true
	m.mu.Unlock()
}

// Health responds to GET /health.
func (m *Monitor) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": m.Service,
		"time":    time.Now().Unix(),
	})
}

// Ready responds to GET /ready with the last probe results.
func (m *Monitor) Ready(c *gin.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checks := make(gin.H, len(m.results))
	ready := m.probed
	for name, err := range m.results {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

func (m *Monitor) Register(r gin.IRoutes) {
	r.GET("/health", m.Health)
	r.GET("/ready", m.Ready)
}
