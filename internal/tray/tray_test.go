package tray

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
	"github.com/yok-tottii/EzS2T-Realtime/internal/turn"
)

func useEnglish(t *testing.T) {
	t.Helper()
	translator, err := i18n.NewDefault(i18n.LanguageEnglish)
	if err != nil {
		t.Fatalf("Failed to load catalogs: %v", err)
	}
	i18n.GlobalTranslator = translator
	t.Cleanup(func() { i18n.GlobalTranslator = nil })
}

func TestNewManager(t *testing.T) {
	manager := NewManager(Config{Mode: "reply"})

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}
	if manager.State() != StateIdle {
		t.Errorf("Expected initial state to be StateIdle, got %v", manager.State())
	}

	for _, state := range []State{StateIdle, StateListening, StateResponding} {
		if len(manager.icons[state]) == 0 {
			t.Errorf("Expected icon data for %v", state)
		}
	}
}

func TestStateFromPhase(t *testing.T) {
	tests := []struct {
		phase    turn.Phase
		expected State
	}{
		{turn.PhaseIdle, StateIdle},
		{turn.PhaseSpeechActive, StateListening},
		{turn.PhaseSilencePending, StateListening},
		{turn.PhaseFinalizing, StateResponding},
		{turn.PhaseSubmitted, StateResponding},
		{turn.PhaseResponding, StateResponding},
		{turn.PhaseDone, StateIdle},
		{turn.PhaseInterrupted, StateIdle},
	}

	for _, tt := range tests {
		if got := StateFromPhase(tt.phase); got != tt.expected {
			t.Errorf("%v: expected %v, got %v", tt.phase, tt.expected, got)
		}
	}
}

func TestSetPhase_BeforeReady(t *testing.T) {
	manager := NewManager(Config{})

	// systray is not running, so only the cached state changes
	manager.SetPhase(turn.PhaseResponding)
	if manager.State() != StateResponding {
		t.Errorf("Expected StateResponding, got %v", manager.State())
	}

	manager.SetPhase(turn.PhaseDone)
	if manager.State() != StateIdle {
		t.Errorf("Expected StateIdle, got %v", manager.State())
	}
}

func TestUpdateDeviceMenu_BeforeReady(t *testing.T) {
	manager := NewManager(Config{})
	manager.UpdateDeviceMenu([]audio.Device{{ID: 1, Name: "Mic", InputChannels: 1}}, 1)

	if len(manager.deviceMenuItems) != 0 {
		t.Errorf("Expected no menu items before ready, got %d", len(manager.deviceMenuItems))
	}
}

func TestDeviceEntries(t *testing.T) {
	devices := []audio.Device{
		{ID: 0, Name: "Built-in Microphone", InputChannels: 1, IsDefault: true},
		{ID: 1, Name: "Speakers", OutputChannels: 2},
		{ID: 2, Name: "USB Mic", InputChannels: 2},
	}

	tests := []struct {
		name       string
		selectedID int
		expected   []string
	}{
		{"SystemDefault", -1, []string{"✓ Built-in Microphone", "USB Mic"}},
		{"Explicit", 2, []string{"Built-in Microphone", "✓ USB Mic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := deviceEntries(devices, tt.selectedID)
			if len(entries) != len(tt.expected) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, entry := range entries {
				if entry.title != tt.expected[i] {
					t.Errorf("Expected title %q, got %q", tt.expected[i], entry.title)
				}
			}
			if entries[0].tooltip != "System default device" {
				t.Errorf("Expected default tooltip, got %q", entries[0].tooltip)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	useEnglish(t)

	tests := []struct {
		phase   turn.Phase
		status  string
		tooltip string
	}{
		{turn.PhaseIdle, "Status: Waiting for speech", "EzS2T-Realtime - Waiting for speech"},
		{turn.PhaseSpeechActive, "Status: Listening", "EzS2T-Realtime - Listening"},
		{turn.PhaseSilencePending, "Status: Silence detected", "EzS2T-Realtime - Silence detected"},
		{turn.PhaseSubmitted, "Status: Finalizing", "EzS2T-Realtime - Finalizing"},
		{turn.PhaseResponding, "Status: Responding", "EzS2T-Realtime - Responding"},
		{turn.PhaseInterrupted, "Status: Idle", "EzS2T-Realtime - Idle"},
	}

	for _, tt := range tests {
		if got := statusLabel(tt.phase); got != tt.status {
			t.Errorf("Expected %q, got %q", tt.status, got)
		}
		if got := tooltipFor(tt.phase); got != tt.tooltip {
			t.Errorf("Expected %q, got %q", tt.tooltip, got)
		}
	}
}

func TestFallbackIcon(t *testing.T) {
	tint := color.RGBA{0xF1, 0x9E, 0x39, 0xFF}
	img, err := png.Decode(bytes.NewReader(fallbackIcon(tint)))
	if err != nil {
		t.Fatalf("Expected valid PNG, got %v", err)
	}

	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("Expected 16x16 icon, got %v", img.Bounds())
	}

	r, g, b, a := img.At(8, 8).RGBA()
	if r>>8 != 0xF1 || g>>8 != 0x9E || b>>8 != 0x39 || a>>8 != 0xFF {
		t.Errorf("Expected tint at center, got %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}

	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Errorf("Expected transparent corner, got alpha %d", a)
	}
}
