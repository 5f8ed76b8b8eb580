package config

import "math"

// ChunkLen is the number of samples in one captured chunk,
// sampleRate × segmentSeconds rounded down.
func (c *Config) ChunkLen() int {
	return int(math.Floor(c.Audio.SampleRate * c.Audio.SegmentSeconds))
}

// MaxChunks is the capacity of the rolling window in chunks,
// floor(windowSeconds / segmentSeconds).
func (c *Config) MaxChunks() int {
	// The epsilon keeps 10/0.1 from landing on 99.999.
	return int(math.Floor(c.Audio.WindowSeconds/c.Audio.SegmentSeconds + 1e-9))
}

// ModelLen is the fixed length of the flattened buffer fed to the classifier.
func (c *Config) ModelLen() int {
	return int(math.Floor(c.Audio.SampleRate * c.Model.InputSeconds))
}

// Threads returns the classifier parallelism hint, defaulting to fallback
// (normally runtime.NumCPU) when unset.
func (c *Config) Threads(fallback int) int {
	if c.Model.Threads > 0 {
		return c.Model.Threads
	}
	return fallback
}
