package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 3 * time.Second
)

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// probeOnce runs every probe and flips the serving status. The service is
// SERVING only when all probes pass.
func (s *GRPCServer) probeOnce(ctx context.Context) bool {
	healthy := true
	for _, p := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			healthy = false
			s.logger.Warn(ctx, "dependency probe failed", "dependency", p.Name, "error", err)
		}
	}

	if healthy {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.probeOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
