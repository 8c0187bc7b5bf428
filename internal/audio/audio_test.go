package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.SampleRate != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", config.SampleRate)
	}

	if config.OutputSampleRate != 24000 {
		t.Errorf("Expected output sample rate 24000, got %d", config.OutputSampleRate)
	}

	if config.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", config.Channels)
	}

	if config.Latency != HighStability {
		t.Errorf("Expected HighStability latency, got %v", config.Latency)
	}

	if config.InputDeviceID != -1 || config.OutputDeviceID != -1 {
		t.Errorf("Expected default device IDs -1, got %d/%d", config.InputDeviceID, config.OutputDeviceID)
	}

	if config.BlockDuration != 100*time.Millisecond {
		t.Errorf("Expected block duration 100ms, got %v", config.BlockDuration)
	}
}

func TestFramesPerBlock(t *testing.T) {
	config := DefaultConfig()
	if got := config.FramesPerBlock(); got != 2400 {
		t.Errorf("Expected 2400 frames per block, got %d", got)
	}

	config.SampleRate = 16000
	config.BlockDuration = 40 * time.Millisecond
	if got := config.FramesPerBlock(); got != 640 {
		t.Errorf("Expected 640 frames per block, got %d", got)
	}
}

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		rate     int
		channels int
		expected time.Duration
	}{
		{"100ms mono", 1600, 16000, 1, 100 * time.Millisecond},
		{"100ms stereo", 3200, 16000, 2, 100 * time.Millisecond},
		{"empty", 0, 16000, 1, 0},
		{"invalid rate", 1600, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameDuration(tt.n, tt.rate, tt.channels); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseLatency(t *testing.T) {
	if ParseLatency("low") != LowLatency {
		t.Error("Expected low to map to LowLatency")
	}
	if ParseLatency("high") != HighStability {
		t.Error("Expected high to map to HighStability")
	}
	if ParseLatency("") != HighStability {
		t.Error("Expected empty string to map to HighStability")
	}
}

func TestPeakAmplitude(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected int
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0}, 0},
		{"positive peak", []int16{10, 600, -20}, 600},
		{"negative peak", []int16{10, -700, 20}, 700},
		{"min int16", []int16{-32768, 32767}, 32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakAmplitude(tt.samples); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestPCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := Int16ToBytes(samples)

	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}

	// -1 is 0xFFFF little-endian
	if data[4] != 0xFF || data[5] != 0xFF {
		t.Errorf("Expected 0xFFFF for -1, got %#x %#x", data[4], data[5])
	}

	back := BytesToInt16(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}

	// trailing odd byte is ignored
	if got := BytesToInt16([]byte{1, 0, 7}); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected [1], got %v", got)
	}
}

func TestWriteWAV(t *testing.T) {
	var buf bytes.Buffer
	samples := []int16{100, -100, 200, -200}

	if err := WriteWAV(&buf, samples, 16000, 1); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	data := buf.Bytes()
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Error("Missing RIFF/WAVE/data markers")
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("Expected data size %d, got %d", len(samples)*2, size)
	}

	if err := WriteWAV(&buf, samples, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestSaveWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "captured_audio.wav")

	if err := SaveWAV(path, []int16{1, 2, 3}, 16000, 1); err != nil {
		t.Fatalf("SaveWAV failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected wav file, got %v", err)
	}
	if info.Size() != 50 {
		t.Errorf("Expected 50 bytes, got %d", info.Size())
	}
}

func TestNewPortAudioDriver(t *testing.T) {
	driver, err := NewPortAudioDriver()
	if err != nil {
		t.Skipf("PortAudio not available: %v", err)
	}
	defer driver.Close()

	if driver == nil {
		t.Fatal("Expected non-nil driver")
	}
}

func TestListDevices(t *testing.T) {
	driver, err := NewPortAudioDriver()
	if err != nil {
		t.Skipf("PortAudio not available: %v", err)
	}
	defer driver.Close()

	devices, err := driver.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}

	if len(devices) == 0 {
		t.Skip("No audio devices available")
	}

	for _, dev := range devices {
		t.Logf("Device %d: %s (in=%d out=%d default=%v/%v)",
			dev.ID, dev.Name, dev.InputChannels, dev.OutputChannels, dev.IsDefault, dev.IsDefaultOutput)
		if dev.InputChannels <= 0 && dev.OutputChannels <= 0 {
			t.Errorf("Device %d has no channels", dev.ID)
		}
	}
}

func TestCaptureLifecycle(t *testing.T) {
	driver, err := NewPortAudioDriver()
	if err != nil {
		t.Skipf("PortAudio not available: %v", err)
	}
	defer driver.Close()

	capture, err := driver.OpenCapture(DefaultConfig(), nil)
	if err != nil {
		t.Skipf("No usable input device: %v", err)
	}

	select {
	case frame := <-capture.Frames():
		if len(frame.Samples) != DefaultConfig().FramesPerBlock() {
			t.Errorf("Expected %d samples, got %d", DefaultConfig().FramesPerBlock(), len(frame.Samples))
		}
	case <-time.After(2 * time.Second):
		t.Error("No frame captured within 2s")
	}

	if err := capture.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Closing twice is a no-op
	if err := capture.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	for range capture.Frames() {
	}
}

func TestCloseDriver(t *testing.T) {
	driver, err := NewPortAudioDriver()
	if err != nil {
		t.Skipf("PortAudio not available: %v", err)
	}

	if err := driver.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if driver.initialized {
		t.Error("Driver should not be initialized after Close")
	}

	if _, err := driver.OpenCapture(DefaultConfig(), nil); err == nil {
		t.Error("OpenCapture should fail after Close")
	}
}
