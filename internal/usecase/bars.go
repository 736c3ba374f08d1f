package usecase

import (
	"context"
	"fmt"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	"SigPull/internal/services/features"
)

const maxBarsLimit = 7200

// BarsUseCase serves bar history at the native or a coarser timeframe.
type BarsUseCase struct {
	bars domrepo.BarReader
}

func NewBarsUseCase(bars domrepo.BarReader) *BarsUseCase {
	return &BarsUseCase{bars: bars}
}

type GetBarsParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetBarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"tf"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

func (uc *BarsUseCase) GetBars(_ context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	if p.Limit <= 0 {
		p.Limit = 300
	}
	if p.Limit > maxBarsLimit {
		p.Limit = maxBarsLimit
	}

	bars := uc.bars.Snapshot(p.Symbol, 0)
	if p.Timeframe != domrepo.TF1s {
		bars = features.Resample(bars, p.Timeframe.Seconds())
	}
	if len(bars) > p.Limit {
		bars = bars[len(bars)-p.Limit:]
	}

	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(bars),
		Bars:      bars,
	}, nil
}
