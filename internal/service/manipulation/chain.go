package manipulation

import (
	"context"
	"errors"

	"SigPull/internal/domain/models"
	domsvc "SigPull/internal/domain/service"
	"SigPull/pkg/logger"
)

// Chain sums the reports of several detectors. A failing member is logged and
// skipped; Analyze only fails when every member does.
type Chain struct {
	detectors []domsvc.ManipulationDetector
	log       *logger.Logger
}

func NewChain(lgr *logger.Logger, detectors ...domsvc.ManipulationDetector) *Chain {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Chain{detectors: detectors, log: lgr.With("manipulation")}
}

func (c *Chain) Analyze(ctx context.Context, ticks []models.Tick, bars []models.Bar) (domsvc.ManipulationReport, error) {
	out := domsvc.ManipulationReport{Reasons: []string{}}
	var errs []error
	for _, d := range c.detectors {
		r, err := d.Analyze(ctx, ticks, bars)
		if err != nil {
			c.log.Warn("detector failed", logger.Error(err))
			errs = append(errs, err)
			continue
		}
		out.Score += r.Score
		out.Reasons = append(out.Reasons, r.Reasons...)
	}
	if len(c.detectors) > 0 && len(errs) == len(c.detectors) {
		return out, errors.Join(errs...)
	}
	return out, nil
}
