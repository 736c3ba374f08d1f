package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Symbol string `query:"symbol" validate:"required,symbol"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=100"`
	TF     string `query:"tf" default:"1s" validate:"oneof=1s 1m"`
}

func TestReadAndValidateRequest(t *testing.T) {
	testCases := []struct {
		name      string
		query     string
		wantCode  string
		wantField string
		wantLimit int
	}{
		{name: "defaults applied", query: "symbol=btcusdt", wantLimit: 50},
		{name: "explicit limit", query: "symbol=EURUSD_OTC&limit=7", wantLimit: 7},
		{name: "missing symbol", query: "", wantCode: "ERR_REQUIRED", wantField: "symbol"},
		{name: "bad symbol", query: "symbol=BTC-USD", wantCode: "ERR_SYMBOL", wantField: "symbol"},
		{name: "limit too large", query: "symbol=BTCUSDT&limit=500", wantCode: "ERR_LTE", wantField: "limit"},
		{name: "bad timeframe", query: "symbol=BTCUSDT&tf=1h", wantCode: "ERR_ONEOF", wantField: "tf"},
		{name: "non numeric limit", query: "symbol=BTCUSDT&limit=x", wantCode: "ERR_BIND"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil), httptest.NewRecorder())

			req := &sampleRequest{}
			verr := ReadAndValidateRequest(c, req)
			if tc.wantCode == "" {
				require.Nil(t, verr)
				assert.Equal(t, tc.wantLimit, req.Limit)
				return
			}
			errs, ok := verr.([]ValidationError)
			require.True(t, ok)
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.wantCode, errs[0].Code)
			assert.Equal(t, tc.wantField, errs[0].Field)
		})
	}
}
