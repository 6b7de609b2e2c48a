package job

import (
	"context"
	"log/slog"
	"time"
)

// Checker refreshes the backend reachability cache.
type Checker interface {
	Check(ctx context.Context) bool
}

type HealthJob struct {
	hc Checker
}

func NewHealthJob(hc Checker) *HealthJob {
	return &HealthJob{hc: hc}
}

func (c *HealthJob) RefreshHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if !c.hc.Check(ctx) {
		slog.Warn("backend offline")
	}
}
