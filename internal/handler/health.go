package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/influencerlab/api/internal/client"
)

const healthProbeTimeout = 3 * time.Second

// BackendProbe is satisfied by *client.ComputeClient.
type BackendProbe interface {
	SystemStats(ctx context.Context) (*client.SystemStats, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	compute      BackendProbe
	redis        Pinger
	r2Configured bool
}

func NewHealthHandler(compute BackendProbe, redis Pinger, r2Configured bool) *HealthHandler {
	return &HealthHandler{compute: compute, redis: redis, r2Configured: r2Configured}
}

// Health handles GET /health. The service reports "degraded" while the
// compute backend or Redis is unreachable; it still answers 200 so load
// balancers keep routing status queries.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
	defer cancel()

	computeUp := false
	var devices []string
	if h.compute != nil {
		if stats, err := h.compute.SystemStats(ctx); err == nil {
			computeUp = true
			for _, d := range stats.Devices {
				devices = append(devices, d.Name)
			}
		}
	}

	redisUp := h.redis != nil && h.redis(ctx) == nil

	status := "ok"
	if !computeUp || !redisUp {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"services": fiber.Map{
			"compute": computeUp,
			"devices": devices,
			"redis":   redisUp,
			"r2":      h.r2Configured,
		},
	})
}
