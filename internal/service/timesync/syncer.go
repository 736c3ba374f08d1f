package timesync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	domsvc "SigPull/internal/domain/service"
	rtmetrics "SigPull/internal/service/metrics"
	xhttp "SigPull/pkg/http"
	"SigPull/pkg/logger"
	"SigPull/pkg/util"
)

var errNoTime = errors.New("response carries no time")

type worldTime struct {
	UnixTime int64  `json:"unixtime"`
	DateTime string `json:"datetime"`
}

// Syncer measures the offset between a reference clock and the local one and
// serves an offset-adjusted Now. Until the first successful sync the offset is 0.
type Syncer struct {
	url    string
	client *xhttp.Client
	now    func() time.Time
	log    *logger.Logger

	offsetMs atomic.Int64
}

func New(url string, timeout time.Duration, lgr *logger.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Syncer{
		url:    url,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("sigpull-timesync")),
		now:    time.Now,
		log:    lgr.With("timesync"),
	}
}

var _ domsvc.Clock = (*Syncer)(nil)

// Sync fetches the reference time once. A failure keeps the previous offset.
func (s *Syncer) Sync(ctx context.Context) error {
	var wt worldTime
	if err := s.client.GetJSON(ctx, s.url, nil, &wt); err != nil {
		return fmt.Errorf("timesync: %w", err)
	}
	local := s.now()

	var ref time.Time
	switch {
	case wt.UnixTime > 0:
		ref = time.Unix(wt.UnixTime, 0)
	case wt.DateTime != "":
		t, ok := util.ParseTime(wt.DateTime)
		if !ok {
			return fmt.Errorf("timesync: unparseable datetime %q", wt.DateTime)
		}
		ref = t
	default:
		return fmt.Errorf("timesync: %w", errNoTime)
	}

	offset := ref.Sub(local).Milliseconds()
	s.offsetMs.Store(offset)
	rtmetrics.ClockOffset.Set(float64(offset))
	s.log.Debug("clock offset updated", logger.Int64("offset_ms", offset))
	return nil
}

// Offset is the last measured reference-minus-local offset in milliseconds.
func (s *Syncer) Offset() int64 { return s.offsetMs.Load() }

func (s *Syncer) Now() time.Time {
	return s.now().Add(time.Duration(s.offsetMs.Load()) * time.Millisecond).UTC()
}
