package manipulation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"SigPull/internal/domain/models"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/services/features"
	xhttp "SigPull/pkg/http"
)

const detectPath = "/anomaly/detect"

// maxRemoteScore caps what the remote scorer can add on its own.
const maxRemoteScore = 40

type Anomaly struct {
	TSIndex  int     `json:"ts_index"`
	Type     string  `json:"type"`
	Severity float64 `json:"severity"` // 0..1
}

type anomalyReq struct {
	Returns []float64 `json:"returns"`
	Vols    []float64 `json:"vols"`
}

type anomalyResp struct {
	Anomalies []Anomaly `json:"anomalies"`
}

// Remote asks an external anomaly service to score the window's log returns
// and per-bar volumes.
type Remote struct {
	baseURL string
	client  *xhttp.Client
}

// NewRemote retries failed calls up to attempts times in total.
func NewRemote(baseURL string, timeout time.Duration, attempts int) *Remote {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(attempts, 50*time.Millisecond)),
	}
}

var _ domsvc.ManipulationDetector = (*Remote)(nil)

func (r *Remote) Analyze(ctx context.Context, _ []models.Tick, bars []models.Bar) (domsvc.ManipulationReport, error) {
	report := domsvc.ManipulationReport{Reasons: []string{}}
	if len(bars) < 2 {
		return report, nil
	}
	req := anomalyReq{Returns: features.ComputeLogReturns(bars), Vols: make([]float64, 0, len(bars)-1)}
	for _, b := range bars[1:] {
		req.Vols = append(req.Vols, b.Volume)
	}

	var resp anomalyResp
	if err := r.client.PostJSON(ctx, r.baseURL+detectPath, req, &resp); err != nil {
		return report, fmt.Errorf("anomaly detect: %w", err)
	}
	for _, a := range resp.Anomalies {
		sev := math.Max(0, math.Min(1, a.Severity))
		report.Score += math.Round(sev * 20)
		report.Reasons = append(report.Reasons, "remote:"+a.Type)
	}
	report.Score = math.Min(report.Score, maxRemoteScore)
	return report, nil
}
