// Package entropy provides the randomness sources behind scheduling and
// meeting draws: a seeded PRNG for reproducible runs, and an optional
// random.org pool that falls back to crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source is the randomness the simulation draws from.
// *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64 // [0, 1)
	Intn(n int) int   // [0, n)
}

// NewSeeded returns a reproducible source.
func NewSeeded(seed int64) Source {
	return mrand.New(mrand.NewSource(seed))
}

const randomOrgURL = "https://api.random.org/json-rpc/4/invoke"

const (
	lowWater     = 10
	batchSize    = 100
	failCooldown = time.Minute
)

// Client provides true random numbers from random.org with a local pool.
// Draws never wait on the network: the pool is topped up in the background
// and crypto/rand fills in while it is empty.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
	now      func() time.Time

	mu         sync.Mutex
	pool       []float64
	refilling  bool
	retryAfter time.Time // no refill attempts before this after a failure
	inflight   sync.WaitGroup
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: randomOrgURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

// Float64 returns a random float64 in [0, 1). Uses the pool, starting a
// background refill from random.org when low. Falls back to crypto/rand
// while the pool is empty.
func (c *Client) Float64() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < lowWater && !c.refilling && !c.now().Before(c.retryAfter) {
		c.refilling = true
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.refill()
		}()
	}

	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

// Intn returns a random int in [0, n). It returns 0 when n <= 0.
func (c *Client) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(c.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// refill fetches one batch and appends it to the pool. On any failure the
// client stops asking for failCooldown.
func (c *Client) refill() {
	data, err := c.fetch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refilling = false
	if err != nil {
		c.retryAfter = c.now().Add(failCooldown)
		slog.Debug("random.org refill failed, using crypto/rand", "error", err, "retry_after", c.retryAfter)
		return
	}
	for _, v := range data {
		if v >= 0 && v < 1 {
			c.pool = append(c.pool, v)
		}
	}
	slog.Debug("random.org pool refilled", "count", len(c.pool))
}

func (c *Client) fetch() ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             batchSize,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
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
		return nil, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Result.Random.Data) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	return result.Result.Random.Data, nil
}

// cryptoRandFloat generates a random float64 using crypto/rand as fallback.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// FromConfig returns the random.org client when a key is set, otherwise a
// seeded source.
func FromConfig(apiKey string, seed int64) Source {
	if c := NewClient(apiKey); c.Enabled() {
		return c
	}
	return NewSeeded(seed)
}
