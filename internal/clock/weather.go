// Simulated weather driven by smooth noise, with an optional real-weather
// overlay from OpenWeatherMap.
package clock

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// WeatherKind classifies the current conditions for the scheduler.
type WeatherKind uint8

const (
	WeatherClear WeatherKind = iota
	WeatherRain
	WeatherStorm
)

// String returns a human-readable weather name.
func (k WeatherKind) String() string {
	switch k {
	case WeatherClear:
		return "clear"
	case WeatherRain:
		return "rain"
	case WeatherStorm:
		return "storm"
	default:
		return "unknown"
	}
}

// Weather is the current-conditions value handed to the scheduler.
type Weather struct {
	Kind     WeatherKind
	Severity float64 // [0,1]: 0 calm, 1 violent
}

// Severity bands for the noise field. Rain above rainBand, storm above
// stormBand.
const (
	rainBand  = 0.65
	stormBand = 0.88
)

// WeatherSource produces weather from an opensimplex noise field over sim
// time, optionally overridden by live conditions from a real-weather client.
type WeatherSource struct {
	noise opensimplex.Noise
	live  *LiveWeatherClient // nil = simulated only
}

// NewWeatherSource creates a noise-driven weather source. live may be nil.
func NewWeatherSource(seed int64, live *LiveWeatherClient) *WeatherSource {
	return &WeatherSource{
		noise: opensimplex.NewNormalized(seed),
		live:  live,
	}
}

// At returns the weather at the given tick.
func (w *WeatherSource) At(tick uint64) Weather {
	if w.live != nil {
		if cond, err := w.live.Fetch(); err == nil {
			return mapConditions(cond)
		}
		// Fall through to simulated weather on API failure.
	}

	// Sample slowly so weather fronts last a few sim-hours. The second
	// axis decorrelates consecutive days.
	t := float64(tick) / (3 * TicksPerHour)
	d := float64(tick/TicksPerDay) * 0.7
	sev := w.noise.Eval2(t, d)

	kind := WeatherClear
	switch {
	case sev >= stormBand:
		kind = WeatherStorm
	case sev >= rainBand:
		kind = WeatherRain
	}
	return Weather{Kind: kind, Severity: sev}
}

func mapConditions(c *Conditions) Weather {
	switch {
	case c.IsStorm:
		return Weather{Kind: WeatherStorm, Severity: 1}
	case c.IsRain || c.IsSnow:
		return Weather{Kind: WeatherRain, Severity: 0.7}
	default:
		return Weather{Kind: WeatherClear, Severity: 0.2}
	}
}

// LiveWeatherClient fetches conditions from OpenWeatherMap.
type LiveWeatherClient struct {
	apiKey   string
	location string
	client   *http.Client

	mu          sync.Mutex
	cached      *Conditions
	cachedAt    time.Time
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

// NewLiveWeatherClient creates a weather API client. Returns nil if apiKey
// is empty, which disables the overlay.
func NewLiveWeatherClient(apiKey, location string) *LiveWeatherClient {
	if apiKey == "" {
		return nil
	}
	if location == "" {
		location = "Oslo,NO"
	}
	return &LiveWeatherClient{
		apiKey:   apiKey,
		location: location,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 5 * time.Minute,
	}
}

// Conditions holds parsed weather data from the API.
type Conditions struct {
	Temp        float64 `json:"temp"` // Celsius
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"` // m/s
	IsStorm     bool    `json:"is_storm"`
	IsSnow      bool    `json:"is_snow"`
	IsRain      bool    `json:"is_rain"`
}

// Fetch retrieves current weather conditions, using cache if fresh.
func (c *LiveWeatherClient) Fetch() (*Conditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached, nil
	}

	// Backoff on repeated failures (up to 10 minutes).
	if c.failBackoff > 0 && time.Since(c.lastFailAt) < c.failBackoff {
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, fmt.Errorf("weather API backoff (%s remaining)", c.failBackoff-time.Since(c.lastFailAt))
	}

	conditions, err := c.fetchFromAPI()
	if err != nil {
		c.lastFailAt = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = 1 * time.Minute
		} else if c.failBackoff < 10*time.Minute {
			c.failBackoff *= 2
		}
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = conditions
	c.cachedAt = time.Now()
	c.failBackoff = 0 // Reset backoff on success.
	return conditions, nil
}

func (c *LiveWeatherClient) fetchFromAPI() (*Conditions, error) {
	apiURL := fmt.Sprintf("https://api.openweathermap.org/data/2.5/weather?q=%s&appid=%s&units=metric",
		url.QueryEscape(c.location), c.apiKey)

	resp, err := c.client.Get(apiURL)
	if err != nil {
		return nil, fmt.Errorf("weather API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, string(body))
	}

	var owm struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}

	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parse weather: %w", err)
	}

	conditions := &Conditions{
		Temp:      owm.Main.Temp,
		WindSpeed: owm.Wind.Speed,
	}

	if len(owm.Weather) > 0 {
		conditions.Description = owm.Weather[0].Description
		main := strings.ToLower(owm.Weather[0].Main)
		conditions.IsRain = main == "rain" || main == "drizzle"
		conditions.IsSnow = main == "snow"
		conditions.IsStorm = main == "thunderstorm" || conditions.WindSpeed > 15
	}

	slog.Debug("weather fetched", "temp", conditions.Temp, "desc", conditions.Description)
	return conditions, nil
}
