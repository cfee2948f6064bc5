// Package engine provides the orchestrator and the tick-based loop driving
// it. One external tick advances the village by one sim-minute.
package engine

import (
	"log/slog"
	"time"

	"github.com/talgya/villagers/internal/clock"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Speed    float64       // Multiplier: 1.0 = real-time, 0 = paused
	Interval time.Duration // Base tick interval (default 1 second)
	Running  bool

	// Callbacks for each tick layer — populated during setup.
	OnTick func(tick uint64) // Every tick (sim-minute)
	OnHour func(tick uint64) // Every 60 ticks
	OnDay  func(tick uint64) // Every 1440 ticks
	OnWeek func(tick uint64) // Every 10080 ticks
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Speed:    1.0,
		Interval: time.Second,
	}
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.Running = true
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed)

	for e.Running {
		if e.Speed <= 0 {
			// Paused — sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / e.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.Running = false
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	if e.Tick%clock.TicksPerHour == 0 && e.OnHour != nil {
		e.OnHour(e.Tick)
	}

	if e.Tick%clock.TicksPerDay == 0 && e.OnDay != nil {
		e.OnDay(e.Tick)
	}

	if e.Tick%clock.TicksPerWeek == 0 && e.OnWeek != nil {
		e.OnWeek(e.Tick)
	}
}
