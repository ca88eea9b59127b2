package profiler

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickWaitsForInterval(t *testing.T) {
	p := NewProfiler(slog.New(slog.DiscardHandler))
	p.updateInterval = time.Hour

	_, logged := p.Tick()
	assert.False(t, logged)
}

func TestTickReportsRenderStats(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(slog.New(slog.NewTextHandler(&buf, nil)))
	p.lastTime = time.Now().Add(-2 * time.Second)

	p.RecordRender(2*time.Millisecond, nil)
	p.RecordRender(6*time.Millisecond, errors.New("pass 1: boom"))
	p.frameCount = 1

	s, logged := p.Tick()
	require.True(t, logged)
	assert.Equal(t, 4*time.Millisecond, s.AvgRender)
	assert.Equal(t, 6*time.Millisecond, s.MaxRender)
	assert.Equal(t, 1, s.Failures)
	assert.Greater(t, s.FPS, 0.0)
	assert.Contains(t, buf.String(), "frame stats")

	// Counters restart with the next interval.
	assert.Zero(t, p.frameCount)
	assert.Zero(t, p.failures)
	assert.Zero(t, p.renderMax)
}
