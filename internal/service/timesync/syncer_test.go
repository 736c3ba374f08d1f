package timesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncer_Sync(t *testing.T) {
	local := time.Unix(1_700_000_000, 0)

	testCases := []struct {
		name     string
		body     string
		status   int
		wantErr  bool
		offsetMs int64
	}{
		{name: "unixtime", body: `{"unixtime":1700000003}`, status: 200, offsetMs: 3000},
		{name: "datetime only", body: `{"datetime":"2023-11-14T22:13:18.500+00:00"}`, status: 200, offsetMs: -1500},
		{name: "empty body", body: `{}`, status: 200, wantErr: true},
		{name: "server error", body: `oops`, status: 503, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s := New(srv.URL, time.Second, nil)
			s.now = func() time.Time { return local }

			err := s.Sync(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				assert.Zero(t, s.Offset())
				assert.Equal(t, local.UTC(), s.Now())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.offsetMs, s.Offset())
			assert.Equal(t, local.Add(time.Duration(tc.offsetMs)*time.Millisecond).UTC(), s.Now())
		})
	}
}

func TestSyncer_FailureKeepsOffset(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"unixtime":1700000010}`))
	}))
	defer srv.Close()

	s := New(srv.URL, time.Second, nil)
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	require.NoError(t, s.Sync(context.Background()))
	failing.Store(true)
	assert.Error(t, s.Sync(context.Background()))
	assert.Equal(t, int64(10_000), s.Offset())
}
