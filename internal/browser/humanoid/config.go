package humanoid

import (
	"math/rand"

	"github.com/xkilldash9x/salvator/internal/config"
)

// Config is the per-session typing personality, derived from the configured
// baseline with some jitter so consecutive runs do not share one rhythm.
type Config struct {
	Enabled      bool
	KeyMeanMs    float64
	KeyStdDevMs  float64
	KeyMinMs     float64
	PauseChance  float64
	PauseMeanMs  float64
	NgramFactor2 float64
	NgramFactor3 float64
	WordGapScale float64
}

// FromConfig copies the tunables and fills the fixed rhythm factors.
func FromConfig(c config.HumanoidConfig) Config {
	return Config{
		Enabled:      c.Enabled,
		KeyMeanMs:    c.KeyDelayMeanMs,
		KeyStdDevMs:  c.KeyDelayStdDevMs,
		KeyMinMs:     c.KeyDelayMinMs,
		PauseChance:  c.PauseChance,
		PauseMeanMs:  c.PauseMeanMs,
		NgramFactor2: 0.8,
		NgramFactor3: 0.7,
		WordGapScale: 1.6,
	}
}

// FinalizeSessionPersona perturbs the baseline by up to +/-15%.
func (c *Config) FinalizeSessionPersona(rng *rand.Rand) {
	if rng == nil {
		return
	}
	scale := 1 + (rng.Float64()*0.3 - 0.15)
	c.KeyMeanMs *= scale
	c.KeyStdDevMs *= scale
	c.PauseMeanMs *= scale
}

func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}
