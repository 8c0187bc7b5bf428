package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDriver owns the PortAudio library lifetime and opens
// capture and playback streams
type PortAudioDriver struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioDriver creates a new PortAudio driver
func NewPortAudioDriver() (*PortAudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioDriver{initialized: true}, nil
}

// ListDevices returns every device with at least one input or output channel
func (d *PortAudioDriver) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	// Missing defaults are not fatal; nothing is marked default then.
	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 && dev.MaxOutputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:              i,
			Name:            dev.Name,
			InputChannels:   dev.MaxInputChannels,
			OutputChannels:  dev.MaxOutputChannels,
			IsDefault:       defaultInput != nil && dev.Name == defaultInput.Name,
			IsDefaultOutput: defaultOutput != nil && dev.Name == defaultOutput.Name,
		})
	}

	return result, nil
}

// OpenCapture opens and starts an input stream delivering one Frame per block
func (d *PortAudioDriver) OpenCapture(config Config, log *slog.Logger) (*Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("driver not initialized")
	}

	device, err := resolveDevice(config.InputDeviceID, true)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	c := &Capture{
		frames:   make(chan Frame, max(config.QueueSize, 1)),
		rate:     config.SampleRate,
		channels: config.Channels,
		log:      log,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.Channels,
			Latency:  latencyFor(device, config.Latency, true),
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FramesPerBlock(),
	}

	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	c.stream = stream

	log.Info("audio capture started",
		"device", device.Name,
		"sample_rate", config.SampleRate,
		"frames_per_buffer", params.FramesPerBuffer,
	)
	return c, nil
}

// OpenPlayer creates a playback sink on the configured output device.
// The stream itself is opened on first Play.
func (d *PortAudioDriver) OpenPlayer(config Config) (*Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("driver not initialized")
	}

	device, err := resolveDevice(config.OutputDeviceID, false)
	if err != nil {
		return nil, err
	}

	return &Player{
		device:   device,
		channels: config.Channels,
		latency:  latencyFor(device, config.Latency, false),
		drained:  closedChan(),
	}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	d.initialized = false

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

func resolveDevice(id int, input bool) (*portaudio.DeviceInfo, error) {
	var device *portaudio.DeviceInfo
	var err error

	if id == -1 {
		if input {
			device, err = portaudio.DefaultInputDevice()
		} else {
			device, err = portaudio.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get default device: %w", err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		if id < 0 || id >= len(devices) {
			return nil, fmt.Errorf("invalid device ID: %d", id)
		}
		device = devices[id]
	}

	if input && device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("selected device '%s' (ID: %d) has no input channels (output-only device)",
			device.Name, id)
	}
	if !input && device.MaxOutputChannels <= 0 {
		return nil, fmt.Errorf("selected device '%s' (ID: %d) has no output channels (input-only device)",
			device.Name, id)
	}
	return device, nil
}

func latencyFor(device *portaudio.DeviceInfo, mode LatencyMode, input bool) time.Duration {
	switch {
	case input && mode == LowLatency:
		return device.DefaultLowInputLatency
	case input:
		return device.DefaultHighInputLatency
	case mode == LowLatency:
		return device.DefaultLowOutputLatency
	default:
		return device.DefaultHighOutputLatency
	}
}

// Capture is a running microphone stream. It implements Source.
type Capture struct {
	mu       sync.Mutex
	stream   *portaudio.Stream
	frames   chan Frame
	rate     int
	channels int
	closed   bool
	log      *slog.Logger

	sent        uint64
	dropped     uint64
	lastDropLog time.Time
}

var _ Source = (*Capture)(nil)

// callback runs on the PortAudio thread and never blocks: when the
// consumer falls behind the frame is dropped.
func (c *Capture) callback(in []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	samples := make([]int16, len(in))
	copy(samples, in)
	frame := Frame{
		Samples:  samples,
		Duration: FrameDuration(len(samples), c.rate, c.channels),
	}

	select {
	case c.frames <- frame:
		c.sent++
	default:
		c.dropped++
		if time.Since(c.lastDropLog) > time.Second {
			c.log.Warn("audio frame queue full, dropping frames",
				"sent", c.sent, "dropped", c.dropped)
			c.lastDropLog = time.Now()
		}
	}
}

// Frames returns the captured frame channel
func (c *Capture) Frames() <-chan Frame {
	return c.frames
}

// Dropped returns how many frames were discarded because the queue was full
func (c *Capture) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops the stream and closes the frame channel
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	stream := c.stream
	c.mu.Unlock()

	// Stop outside the lock: PortAudio waits for the running callback.
	var stopErr error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			stopErr = fmt.Errorf("failed to stop input stream: %w", err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return stopErr
	}
	c.closed = true
	close(c.frames)
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil && stopErr == nil {
			stopErr = fmt.Errorf("failed to close input stream: %w", err)
		}
	}

	c.log.Info("audio capture stopped", "sent", c.sent, "dropped", c.dropped)
	return stopErr
}

// Player is an exclusive output stream fed from a queue. It implements Sink.
type Player struct {
	openMu   sync.Mutex
	mu       sync.Mutex
	device   *portaudio.DeviceInfo
	channels int
	latency  time.Duration
	stream   *portaudio.Stream
	rate     int
	pending  []int16
	drained  chan struct{}
}

var _ Sink = (*Player)(nil)

// Play appends samples to the playback queue, reopening the stream when
// the sample rate changes
func (p *Player) Play(samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.openMu.Lock()
	defer p.openMu.Unlock()

	p.mu.Lock()
	old := p.stream
	reopen := old == nil || p.rate != sampleRate
	if reopen {
		p.stream = nil
		p.clearLocked()
	}
	p.mu.Unlock()

	if reopen {
		// The callback takes p.mu, so the old stream is torn down unlocked.
		if old != nil {
			old.Abort()
			old.Close()
		}
		stream, err := p.open(sampleRate)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.stream = stream
		p.rate = sampleRate
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		p.drained = make(chan struct{})
	}
	p.pending = append(p.pending, samples...)
	return nil
}

func (p *Player) open(sampleRate int) (*portaudio.Stream, error) {
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   p.device,
			Channels: p.channels,
			Latency:  p.latency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: sampleRate / 25, // 40ms
	}

	stream, err := portaudio.OpenStream(params, p.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	return stream, nil
}

func (p *Player) callback(out []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(out, p.pending)
	clear(out[n:])
	if n == 0 {
		return
	}
	p.pending = p.pending[n:]
	if len(p.pending) == 0 {
		p.clearLocked()
	}
}

// StopPlayback drops queued audio; the device plays silence from the next buffer
func (p *Player) StopPlayback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	return nil
}

func (p *Player) clearLocked() {
	p.pending = nil
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}

// Wait blocks until the queue is empty or ctx is done
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	drained := p.drained
	p.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the output stream
func (p *Player) Close() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.clearLocked()
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close output stream: %w", err)
	}
	return nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
