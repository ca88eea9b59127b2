package profiler

import (
	"log/slog"
	"runtime"
	"time"
)

// Profiler tracks frame rate, frame render time and memory statistics.
// Outputs stats to the logger at a configurable interval.
type Profiler struct {
	logger         *slog.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	renderTotal time.Duration
	renderMax   time.Duration
	failures    int
}

// Stats is one interval's worth of frame statistics.
type Stats struct {
	FPS         float64
	AvgRender   time.Duration
	MaxRender   time.Duration
	Failures    int
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64
}

// NewProfiler creates a new Profiler that logs once a second.
//
// Parameters:
//   - logger: the logger stats are written to; nil uses slog.Default()
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{
		logger:         logger,
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// RecordRender adds one frame's render duration and outcome to the current interval.
//
// Parameters:
//   - d: how long the frame took to render
//   - err: the render error, or nil
func (p *Profiler) RecordRender(d time.Duration, err error) {
	p.renderTotal += d
	if d > p.renderMax {
		p.renderMax = d
	}
	if err != nil {
		p.failures++
	}
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
//
// Returns:
//   - Stats: the interval's statistics when they were logged
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() (Stats, bool) {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Stats{}, false
	}

	s := Stats{
		FPS:       float64(p.frameCount) / elapsed.Seconds(),
		AvgRender: p.renderTotal / time.Duration(p.frameCount),
		MaxRender: p.renderMax,
		Failures:  p.failures,
	}

	runtime.ReadMemStats(&p.memStats)
	s.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	s.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	s.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	s.GCCount = p.memStats.NumGC
	if s.GCCount > 0 {
		s.LastPauseUs = p.memStats.PauseNs[(s.GCCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if s.GCCount-startIdx > 256 {
			startIdx = s.GCCount - 256
		}
		for i := startIdx; i < s.GCCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > s.MaxPauseUs {
				s.MaxPauseUs = pause
			}
		}
	}

	p.logger.Info("frame stats",
		"fps", s.FPS,
		"render_avg", s.AvgRender,
		"render_max", s.MaxRender,
		"failures", s.Failures,
		"heap_mb", s.HeapMB,
		"alloc_rate_mb_s", s.AllocRateMB,
		"gc", s.GCCount,
		"gc_last_us", s.LastPauseUs,
		"gc_max_us", s.MaxPauseUs,
		"sys_mb", s.SysMB,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.renderTotal, p.renderMax, p.failures = 0, 0, 0
	return s, true
}
