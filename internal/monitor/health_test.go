package monitor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func newTestProber(t *testing.T) *Prober {
	return NewProber(ProberConfig{
		Host:           "127.0.0.1",
		Interval:       10 * time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
	}, zaptest.NewLogger(t).Sugar())
}

func TestProber_ReadyOnFirstAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(t)
	assert.True(t, p.WaitUntilReady(context.Background(), serverPort(t, srv), 60))
	assert.Equal(t, int32(1), hits.Load())
}

func TestProber_NeverResponds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := newTestProber(t)
	assert.False(t, p.WaitUntilReady(context.Background(), serverPort(t, srv), 5))
	assert.Equal(t, int32(5), hits.Load())
}

func TestProber_BecomesReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(t)
	assert.True(t, p.WaitUntilReady(context.Background(), serverPort(t, srv), 10))
	assert.Equal(t, int32(3), hits.Load())
}

func TestProber_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	p := newTestProber(t)
	assert.False(t, p.WaitUntilReady(context.Background(), port, 3))
}

func TestProber_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProber(ProberConfig{Host: "127.0.0.1", Interval: time.Hour}, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.False(t, p.WaitUntilReady(ctx, serverPort(t, srv), 60))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProber_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(t)
	port := serverPort(t, srv)
	assert.NoError(t, p.Check(context.Background(), port, time.Second))
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port), p.BaseURL(port))
}

func TestProber_CheckTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := newTestProber(t)
	start := time.Now()
	assert.Error(t, p.Check(context.Background(), serverPort(t, srv), 100*time.Millisecond))
	assert.Less(t, time.Since(start), 2*time.Second)
}
