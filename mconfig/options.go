// Package mconfig is the configuration layer (C5): a functional-options
// in-process Config shared by session, orchestrator, and queryanalyzer
// for the handful of values product policy (not core correctness) gets
// to decide, plus a binary on-disk configuration blob loader/saver.
package mconfig

// GradeBand is one inclusive lower-bound/label pair used to map a 0-100
// score to a letter grade; bands are checked from the highest MinScore
// down, and anything below every band's MinScore grades "F".
type GradeBand struct {
	MinScore float64
	Label    string
}

// DefaultGradeBands is the standard A/B/C/D cut at 90/80/70/60.
var DefaultGradeBands = []GradeBand{
	{MinScore: 90, Label: "A"},
	{MinScore: 80, Label: "B"},
	{MinScore: 70, Label: "C"},
	{MinScore: 60, Label: "D"},
}

// DefaultCacheIntensiveThreshold is the cache hit ratio below which a
// session with at least one cache hit or miss counts as cache-intensive.
const DefaultCacheIntensiveThreshold = 0.7

// DefaultMemoryIntensiveThresholdMB is the memory delta at or above which
// a session counts as memory-intensive.
const DefaultMemoryIntensiveThresholdMB = 50.0

// Config holds the product-policy knobs shared across components. None of
// these affect core correctness (slot reuse, checksum validation, ...);
// they only affect which side of a threshold a derived predicate lands on.
type Config struct {
	CacheIntensiveThreshold    float64
	MemoryIntensiveThresholdMB float64
	GradeBands                 []GradeBand
}

// Option configures a Config at construction time.
type Option func(*Config)

// WithCacheIntensiveThreshold overrides DefaultCacheIntensiveThreshold.
func WithCacheIntensiveThreshold(ratio float64) Option {
	return func(c *Config) { c.CacheIntensiveThreshold = ratio }
}

// WithMemoryIntensiveThreshold overrides DefaultMemoryIntensiveThresholdMB.
func WithMemoryIntensiveThreshold(megabytes float64) Option {
	return func(c *Config) { c.MemoryIntensiveThresholdMB = megabytes }
}

// WithGradeThresholds overrides DefaultGradeBands. bands need not be
// sorted by the caller; this option stores a copy sorted descending by
// MinScore.
func WithGradeThresholds(bands []GradeBand) Option {
	return func(c *Config) {
		sorted := make([]GradeBand, len(bands))
		copy(sorted, bands)
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j].MinScore > sorted[j-1].MinScore; j-- {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			}
		}
		c.GradeBands = sorted
	}
}

// NewConfig constructs a Config with the documented defaults, then
// applies opts.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		CacheIntensiveThreshold:    DefaultCacheIntensiveThreshold,
		MemoryIntensiveThresholdMB: DefaultMemoryIntensiveThresholdMB,
		GradeBands:                 DefaultGradeBands,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Grade maps score to a letter grade using c's bands, "F" below every
// band's MinScore. A nil receiver uses DefaultGradeBands.
func (c *Config) Grade(score float64) string {
	bands := DefaultGradeBands
	if c != nil && c.GradeBands != nil {
		bands = c.GradeBands
	}
	return GradeFor(bands, score)
}

// GradeFor maps score to a letter grade using bands (checked in the order
// given; pass a slice built by WithGradeThresholds's sort, or
// DefaultGradeBands, to get highest-first evaluation), "F" below every
// band's MinScore.
func GradeFor(bands []GradeBand, score float64) string {
	for _, b := range bands {
		if score >= b.MinScore {
			return b.Label
		}
	}
	return "F"
}
