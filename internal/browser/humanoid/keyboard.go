// Package humanoid produces human-looking keystroke timing for text typed into the page.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
)

// commonNgrams are typed faster, the way practiced sequences are.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true, "ha": true, "pp": true,
	"the": true, "and": true, "ing": true, "ion": true, "day": true,
}

// Cadence hands out inter-key delays. Safe for concurrent use.
type Cadence struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg Config
}

// New builds a cadence with its own session persona. seed 0 uses the clock.
func New(cfg Config, seed int64) *Cadence {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	cfg.FinalizeSessionPersona(rng)
	return &Cadence{rng: rng, cfg: cfg}
}

// Enabled reports whether typing should be paced at all.
func (c *Cadence) Enabled() bool { return c != nil && c.cfg.Enabled }

// Plan returns the delay to wait before each rune of text.
func (c *Cadence) Plan(text string) []time.Duration {
	runes := []rune(text)
	delays := make([]time.Duration, len(runes))
	if !c.Enabled() {
		return delays
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range runes {
		delays[i] = c.keyDelay(runes, i)
	}
	return delays
}

// keyDelay must be called with c.mu held.
func (c *Cadence) keyDelay(runes []rune, i int) time.Duration {
	cfg := c.cfg
	mean := cfg.KeyMeanMs
	minDelay := cfg.KeyMinMs

	factor := 1.0
	if i > 1 && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))] {
		factor = cfg.NgramFactor3
	} else if i > 0 && commonNgrams[strings.ToLower(string(runes[i-1:i+1]))] {
		factor = cfg.NgramFactor2
	}
	if i > 0 && unicode.IsSpace(runes[i-1]) {
		factor = cfg.WordGapScale
	}
	mean *= factor

	delay := math.Max(minDelay, sampleGaussian(c.rng, mean, cfg.KeyStdDevMs))
	if cfg.PauseChance > 0 && c.rng.Float64() < cfg.PauseChance {
		delay += math.Max(0, sampleGaussian(c.rng, cfg.PauseMeanMs, cfg.PauseMeanMs/3))
	}
	return time.Duration(delay * float64(time.Millisecond))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
