package audio

import (
	"context"
	"time"
)

// Device represents an audio device
type Device struct {
	ID              int
	Name            string
	InputChannels   int
	OutputChannels  int
	IsDefault       bool // default input
	IsDefaultOutput bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// ParseLatency converts a config string into a LatencyMode.
// Unknown values fall back to HighStability.
func ParseLatency(s string) LatencyMode {
	if s == "low" {
		return LowLatency
	}
	return HighStability
}

// Config holds audio configuration
type Config struct {
	InputDeviceID    int
	OutputDeviceID   int
	SampleRate       int
	OutputSampleRate int
	Channels         int
	BlockDuration    time.Duration
	QueueSize        int
	Latency          LatencyMode
}

// DefaultConfig returns the default audio configuration
// Sample rate: 24kHz both ways (realtime pcm16)
// Channels: 1 (mono)
// Block: 100ms
func DefaultConfig() Config {
	return Config{
		InputDeviceID:    -1, // -1 means use default device
		OutputDeviceID:   -1,
		SampleRate:       24000,
		OutputSampleRate: 24000,
		Channels:         1,
		BlockDuration:    100 * time.Millisecond,
		QueueSize:        64,
		Latency:          HighStability,
	}
}

// FramesPerBlock returns the number of sample frames in one capture block.
func (c Config) FramesPerBlock() int {
	return int(time.Duration(c.SampleRate) * c.BlockDuration / time.Second)
}

// Frame is one block of captured PCM16 audio.
type Frame struct {
	Samples  []int16
	Duration time.Duration
}

// FrameDuration returns the playback length of n interleaved samples.
func FrameDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return time.Duration(n/channels) * time.Second / time.Duration(sampleRate)
}

// Source delivers captured frames in capture order.
// The channel is closed when the source is closed.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// Sink plays PCM16 audio. Play must not block on the device.
type Sink interface {
	// Play queues samples for playback at sampleRate
	Play(samples []int16, sampleRate int) error

	// StopPlayback discards everything queued and silences the device
	StopPlayback() error

	// Wait blocks until queued audio has been played or ctx is done
	Wait(ctx context.Context) error
}

// DeviceLister lists audio devices
type DeviceLister interface {
	ListDevices() ([]Device, error)
}
