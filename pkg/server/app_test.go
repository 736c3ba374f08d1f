package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu    sync.Mutex
	lines []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.lines = append(j.lines, s)
	j.mu.Unlock()
}

type fakeComponent struct {
	name string
	j    *journal
}

func (c fakeComponent) Name() string          { return c.name }
func (c fakeComponent) Start(context.Context) { c.j.add("start " + c.name) }
func (c fakeComponent) Stop()                 { c.j.add("stop " + c.name) }

type fakeHTTP struct {
	j    *journal
	errs chan error
}

func (h *fakeHTTP) Start() error               { h.j.add("http start"); return nil }
func (h *fakeHTTP) Stop(context.Context) error { h.j.add("http stop"); return nil }
func (h *fakeHTTP) Err() <-chan error          { return h.errs }

func TestApp_RunAndShutdownOrder(t *testing.T) {
	j := &journal{}
	http := &fakeHTTP{j: j, errs: make(chan error, 1)}
	app := New(nil, http,
		[]Component{fakeComponent{"a", j}, fakeComponent{"b", j}},
		[]Closer{{Name: "db", Close: func(context.Context) error { j.add("close db"); return nil }}},
		time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		j.mu.Lock()
		defer j.mu.Unlock()
		return len(j.lines) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{
		"start a", "start b", "http start",
		"http stop", "stop b", "stop a", "close db",
	}, j.lines)
}

func TestApp_HTTPFailureStopsApp(t *testing.T) {
	j := &journal{}
	http := &fakeHTTP{j: j, errs: make(chan error, 1)}
	boom := errors.New("address in use")
	http.errs <- boom

	app := New(nil, http, nil, []Closer{{Name: "bad", Close: func(context.Context) error { return errors.New("close failed") }}}, time.Second)
	err := app.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
