// Package entropy supplies the simulation's randomness.
// Source is a seeded deterministic stream driving all routine stochastic
// decisions (Markov sampling, favor trials), so runs are reproducible from
// the world seed. Client pulls true randomness from random.org for the rare
// independent trials where determinism is not wanted (NPC gift events),
// falling back to crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Source is the deterministic stream used by the simulation pipeline.
// Not safe for concurrent use; the simulation runs on one goroutine.
type Source struct {
	rng *rand.Rand
}

// NewSource creates a deterministic source from the world seed.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Float returns a float64 in [0, 1).
func (s *Source) Float() float64 { return s.rng.Float64() }

// Intn returns an int in [0, n).
func (s *Source) Intn(n int) int { return s.rng.Intn(n) }

// Range returns a float64 in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Client provides true random numbers from random.org with a local pool.
type Client struct {
	apiKey string
	client *http.Client

	mu   sync.Mutex
	pool []float64
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a random float64 in [0, 1). Uses the pool, refilling from
// random.org when low. Falls back to crypto/rand on API failure.
func (c *Client) Float() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < 10 {
		c.refill()
	}

	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill() {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             100,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		slog.Debug("random.org marshal failed", "error", err)
		return
	}

	resp, err := c.client.Post("https://api.random.org/json-rpc/4/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Debug("random.org fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Debug("random.org read failed", "error", err)
		return
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Debug("random.org parse failed", "error", err)
		return
	}

	if result.Error != nil {
		slog.Debug("random.org API error", "error", result.Error.Message)
		return
	}

	c.pool = append(c.pool, result.Result.Random.Data...)
	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
}

// cryptoRandFloat generates a random float64 using crypto/rand as fallback.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := crand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// FloatFromClient returns a random float from the client if available, or
// crypto/rand.
func FloatFromClient(c *Client) float64 {
	if c != nil {
		return c.Float()
	}
	return cryptoRandFloat()
}
