package ranking

import (
	"errors"
	"fmt"
)

// ErrInvalidWeights is returned when the similarity/priority weight pair cannot
// be normalized (a negative weight, or both weights zero).
var ErrInvalidWeights = errors.New("invalid ranking weights")

// Config holds the settings of the priority model and weighted ranker.
type Config struct {
	// Enabled turns priority re-ranking on; when false results keep pure similarity order.
	Enabled *bool `yaml:"enabled"`

	// Weights of the final blend: weighted = similarity_weight*similarity + priority_weight*priority.
	SimilarityWeight float64 `yaml:"similarity_weight"` // default: 0.7
	PriorityWeight   float64 `yaml:"priority_weight"`   // default: 0.3

	// RecencyMaxDays is the age at which the recency component reaches zero.
	RecencyMaxDays int `yaml:"recency_max_days"` // default: 365

	// FetchMultiplier is how many times top_k candidates are fetched before re-ranking.
	FetchMultiplier int `yaml:"fetch_multiplier"` // default: 3
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() Config {
	enabled := true
	return Config{
		Enabled:          &enabled,
		SimilarityWeight: 0.7,
		PriorityWeight:   0.3,
		RecencyMaxDays:   365,
		FetchMultiplier:  3,
	}
}

// ApplyDefaults fills in zero values with defaults. Weights are only defaulted
// when both are unset.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Enabled == nil {
		c.Enabled = d.Enabled
	}
	if c.SimilarityWeight == 0 && c.PriorityWeight == 0 {
		c.SimilarityWeight = d.SimilarityWeight
		c.PriorityWeight = d.PriorityWeight
	}
	if c.RecencyMaxDays == 0 {
		c.RecencyMaxDays = d.RecencyMaxDays
	}
	if c.FetchMultiplier == 0 {
		c.FetchMultiplier = d.FetchMultiplier
	}
}

// PriorityEnabled reports whether priority re-ranking is on. Unset means on.
func (c Config) PriorityEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks that the weights can be normalized and the windows are positive.
func (c Config) Validate() error {
	if c.SimilarityWeight < 0 || c.PriorityWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative (similarity=%v, priority=%v)",
			ErrInvalidWeights, c.SimilarityWeight, c.PriorityWeight)
	}
	if c.SimilarityWeight+c.PriorityWeight == 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}
	if c.RecencyMaxDays < 0 {
		return fmt.Errorf("recency_max_days must be positive, got %d", c.RecencyMaxDays)
	}
	if c.FetchMultiplier < 0 {
		return fmt.Errorf("fetch_multiplier must be positive, got %d", c.FetchMultiplier)
	}
	return nil
}

// NormalizedWeights returns the weight pair scaled to sum to 1.
func (c Config) NormalizedWeights() (similarity, priority float64, err error) {
	if err := c.Validate(); err != nil {
		return 0, 0, err
	}
	sum := c.SimilarityWeight + c.PriorityWeight
	return c.SimilarityWeight / sum, c.PriorityWeight / sum, nil
}
