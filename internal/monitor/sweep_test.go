package monitor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSweepPort_NoPort(t *testing.T) {
	swept, err := SweepPort(context.Background(), 0, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestSweepPort_SkipsOwnProcess(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	swept, err := SweepPort(context.Background(), port, 100*time.Millisecond, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Skipf("connection listing unavailable: %v", err)
	}
	assert.Empty(t, swept)

	// listener still usable
	_, err = net.DialTimeout("tcp", l.Addr().String(), time.Second)
	assert.NoError(t, err)
}
