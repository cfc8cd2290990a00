package matchmaker

import (
	"math"
	"time"
)

// NeverFallback disables the fallback override.
const NeverFallback = time.Duration(math.MaxInt64)

// Configuration holds the balance bound and scoring weights for one engine call.
type Configuration struct {
	// MaxTeamEloDifferenceStart is the allowed team rating gap for fresh groups.
	MaxTeamEloDifferenceStart float64
	// MaxTeamEloDifference is the gap reached after MaxTeamEloDifferenceWaitTime.
	MaxTeamEloDifference         float64
	MaxTeamEloDifferenceWaitTime time.Duration

	TeamEloDifferenceWeight     float64
	TeammateEloDifferenceWeight float64
	WaitingTimeWeight           float64

	// Caps of zero leave the term unbounded.
	TeammateEloDifferenceWeightCap float64
	WaitingTimeWeightCap           time.Duration

	// FallbackTime of zero means the balance filter is never bypassed.
	FallbackTime time.Duration
}

// DefaultConfiguration returns the casual queue defaults.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxTeamEloDifferenceStart:    100,
		MaxTeamEloDifference:         400,
		MaxTeamEloDifferenceWaitTime: 5 * time.Minute,
		TeamEloDifferenceWeight:      1,
		TeammateEloDifferenceWeight:  0.1,
		WaitingTimeWeight:            0.5,
		WaitingTimeWeightCap:         10 * time.Minute,
	}
}

// DefaultRankedConfiguration returns tighter bounds for ranked queues.
func DefaultRankedConfiguration() Configuration {
	return Configuration{
		MaxTeamEloDifferenceStart:    50,
		MaxTeamEloDifference:         200,
		MaxTeamEloDifferenceWaitTime: 10 * time.Minute,
		TeamEloDifferenceWeight:      2,
		TeammateEloDifferenceWeight:  0.25,
		WaitingTimeWeight:            0.25,
		WaitingTimeWeightCap:         15 * time.Minute,
	}
}

// Normalize clamps out-of-range values instead of failing.
func (c Configuration) Normalize() Configuration {
	c.MaxTeamEloDifferenceStart = nonNegative(c.MaxTeamEloDifferenceStart)
	c.MaxTeamEloDifference = nonNegative(c.MaxTeamEloDifference)
	if c.MaxTeamEloDifferenceStart > c.MaxTeamEloDifference {
		c.MaxTeamEloDifferenceStart = c.MaxTeamEloDifference
	}
	if c.MaxTeamEloDifferenceWaitTime < 0 {
		c.MaxTeamEloDifferenceWaitTime = 0
	}

	c.TeamEloDifferenceWeight = nonNegative(c.TeamEloDifferenceWeight)
	c.TeammateEloDifferenceWeight = nonNegative(c.TeammateEloDifferenceWeight)
	c.WaitingTimeWeight = nonNegative(c.WaitingTimeWeight)
	c.TeammateEloDifferenceWeightCap = nonNegative(c.TeammateEloDifferenceWeightCap)
	if c.WaitingTimeWeightCap < 0 {
		c.WaitingTimeWeightCap = 0
	}

	if c.FallbackTime <= 0 {
		c.FallbackTime = NeverFallback
	}
	return c
}

// Bound returns the allowed team rating gap for a candidate whose oldest group waited wait.
func (c Configuration) Bound(wait time.Duration) float64 {
	t := 1.0
	if c.MaxTeamEloDifferenceWaitTime > 0 {
		t = float64(wait) / float64(c.MaxTeamEloDifferenceWaitTime)
		t = math.Max(0, math.Min(1, t))
	}
	return c.MaxTeamEloDifferenceStart + t*(c.MaxTeamEloDifference-c.MaxTeamEloDifferenceStart)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// ConfigProvider resolves the configuration for a mode. It is consulted once per engine call.
type ConfigProvider interface {
	MatchmakingConfiguration(mode Mode) Configuration
}

// ConfigProviderFunc adapts a function to ConfigProvider.
type ConfigProviderFunc func(mode Mode) Configuration

func (f ConfigProviderFunc) MatchmakingConfiguration(mode Mode) Configuration {
	return f(mode)
}

// StaticConfig serves the same configuration for every mode.
type StaticConfig Configuration

func (s StaticConfig) MatchmakingConfiguration(Mode) Configuration {
	return Configuration(s)
}
