// Package clock provides the simulation time source: tick-derived world time
// (time of day, day of week, season) and the current weather severity.
// Everything downstream treats it as read-only input.
package clock

import "fmt"

// Tick cadence. One tick is one sim-minute; one tick advances the world by
// SecondsPerTick sim-seconds.
const (
	SecondsPerTick = 60
	TicksPerHour   = 60
	TicksPerDay    = 1440  // 24 hours
	TicksPerWeek   = 10080 // 7 days
	DaysPerSeason  = 30
	TicksPerSeason = DaysPerSeason * TicksPerDay
)

// Season of the sim-year.
type Season uint8

const (
	Spring Season = iota
	Summer
	Autumn
	Winter
)

// String returns a human-readable season name.
func (s Season) String() string {
	switch s {
	case Spring:
		return "Spring"
	case Summer:
		return "Summer"
	case Autumn:
		return "Autumn"
	case Winter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// WorldTime is the wall-clock view consumed by the scheduler each tick.
type WorldTime struct {
	Tick      uint64
	TimeOfDay float64 // Hours, [0, 24)
	DayOfWeek int     // 1 (Monday) … 7 (Sunday)
	Season    Season
	Weather   Weather
}

// Clock derives WorldTime from the engine tick counter and owns the
// weather source.
type Clock struct {
	weather *WeatherSource
}

// New creates a Clock over the given weather source. A nil source is
// rejected: running the simulation with undefined time/weather inputs is the
// one unrecoverable startup condition.
func New(weather *WeatherSource) (*Clock, error) {
	if weather == nil {
		return nil, fmt.Errorf("clock: weather source is required")
	}
	return &Clock{weather: weather}, nil
}

// Now returns the world time at the given tick.
func (c *Clock) Now(tick uint64) WorldTime {
	return WorldTime{
		Tick:      tick,
		TimeOfDay: float64(tick%TicksPerDay) / TicksPerHour,
		DayOfWeek: int((tick/TicksPerDay)%7) + 1,
		Season:    Season((tick / TicksPerSeason) % 4),
		Weather:   c.weather.At(tick),
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	totalHours := tick / 60
	hours := totalHours % 24
	totalDays := totalHours / 24
	day := totalDays%DaysPerSeason + 1
	seasons := totalDays / DaysPerSeason
	season := Season(seasons % 4)
	years := seasons/4 + 1

	return fmt.Sprintf("%s Day %d, %d:%02d Year %d", season, day, hours, minutes, years)
}
