package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/werkbank/internal/testutil"
)

func TestServeHTTPDrainsInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	entered := make(chan struct{})
	var finished atomic.Bool
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, "done")
		finished.Store(true)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- serveHTTP(ctx, srv, ln, 5*time.Second, testutil.Logger())
	}()

	type response struct {
		body string
		err  error
	}
	got := make(chan response, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			got <- response{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		got <- response{body: string(b), err: err}
	}()

	<-entered
	cancel()

	require.NoError(t, <-served)
	assert.True(t, finished.Load(), "serveHTTP returned before the handler finished")

	res := <-got
	require.NoError(t, res.err)
	assert.Equal(t, "done", res.body)
}

func TestServeHTTPReportsServeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	srv := &http.Server{Handler: http.NotFoundHandler()}
	err = serveHTTP(context.Background(), srv, ln, time.Second, testutil.Logger())
	assert.ErrorContains(t, err, "server error")
}
