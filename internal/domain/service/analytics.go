package service

import (
	"context"
	"time"

	"SigPull/internal/domain/models"
)

// ManipulationReport scores how suspicious recent price action looks. Zero means clean.
type ManipulationReport struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// ManipulationDetector inspects recent ticks and bars.
type ManipulationDetector interface {
	Analyze(ctx context.Context, ticks []models.Tick, bars []models.Bar) (ManipulationReport, error)
}

// Clock is the service's notion of now.
type Clock interface {
	Now() time.Time
}

// SystemClock is the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
