// Daily scheduler — maps wall-clock time, day of week, season, and weather
// to a desired activity per personality. Pure function of its inputs; the
// state machine may override it under urgent needs.
package npc

import "github.com/talgya/villagers/internal/clock"

// dayBounds holds one personality's daily anchors in hours.
type dayBounds struct {
	wake, workStart, workEnd, sleep float64
}

// scheduleTable: hardworking villagers wake earliest, lazy latest.
var scheduleTable = [NumPersonalities]dayBounds{
	Hardworking: {wake: 5, workStart: 6, workEnd: 18, sleep: 21},
	Lazy:        {wake: 9, workStart: 10, workEnd: 15, sleep: 23},
	Social:      {wake: 7, workStart: 8, workEnd: 16, sleep: 23},
	Generous:    {wake: 6, workStart: 7, workEnd: 17, sleep: 22},
	Grumpy:      {wake: 7, workStart: 8, workEnd: 17, sleep: 21},
}

var neutralBounds = dayBounds{wake: 7, workStart: 8, workEnd: 17, sleep: 22}

// Weekend policy: no work on day 7, half-day on day 6.
const (
	halfDay = 6
	restDay = 7
)

// rainReturnChance is the probability that rain sends an agent home; a
// storm does so unconditionally.
const rainReturnChance = 0.5

// DesiredActivity computes the advisory activity for an agent. weatherRoll
// is a uniform [0,1) draw supplied by the caller so the function stays pure
// and testable.
func DesiredActivity(p Personality, wt clock.WorldTime, weatherRoll float64) Activity {
	b := neutralBounds
	if int(p) < len(scheduleTable) {
		b = scheduleTable[p]
	}

	// Seasonal shift: winter days start earlier and end work sooner;
	// summer the inverse.
	switch wt.Season {
	case clock.Winter:
		b.wake--
		b.workStart--
		b.workEnd -= 2
	case clock.Summer:
		b.wake++
		b.workStart++
		b.workEnd++
	}

	h := wt.TimeOfDay
	asleep := h < b.wake || h >= b.sleep
	if asleep {
		return ActivitySleep
	}

	// Weather overrides apply only while awake.
	switch wt.Weather.Kind {
	case clock.WeatherStorm:
		return ActivityReturnHome
	case clock.WeatherRain:
		if weatherRoll < rainReturnChance {
			return ActivityReturnHome
		}
	}

	workEnd := b.workEnd
	switch wt.DayOfWeek {
	case restDay:
		workEnd = b.workStart // no work window at all
	case halfDay:
		workEnd = b.workStart + (b.workEnd-b.workStart)/2
	}

	switch {
	case h < b.workStart:
		return ActivityMeal
	case h < workEnd:
		return ActivityWork
	default:
		// Evenings: social personalities seek company, the rest unwind.
		if p == Social {
			return ActivitySocial
		}
		return ActivityLeisure
	}
}

// NextActivities returns the agent's next count scheduled activities at
// hourly resolution, for "ask about plans" style queries. Weather overrides
// are ignored — plans describe intent, not conditions.
func NextActivities(p Personality, wt clock.WorldTime, count int) []Activity {
	out := make([]Activity, 0, count)
	t := wt
	t.Weather = clock.Weather{Kind: clock.WeatherClear}
	for i := 0; i < count; i++ {
		t.TimeOfDay += 1
		if t.TimeOfDay >= 24 {
			t.TimeOfDay -= 24
			t.DayOfWeek = t.DayOfWeek%7 + 1
		}
		out = append(out, DesiredActivity(p, t, 1))
	}
	return out
}
