package hotkey

import (
	"context"
	"testing"
	"time"

	"golang.design/x/hotkey"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	config := m.GetConfig()
	if len(config.Modifiers) != 2 {
		t.Errorf("Expected 2 modifiers, got %d", len(config.Modifiers))
	}

	if config.Key != hotkey.KeySpace {
		t.Errorf("Expected KeySpace, got %v", config.Key)
	}
}

func TestCheckConflicts(t *testing.T) {
	tests := []struct {
		name           string
		modifiers      []hotkey.Modifier
		key            hotkey.Key
		expectConflict bool
	}{
		{
			name:           "Spotlight conflict (Cmd+Space)",
			modifiers:      []hotkey.Modifier{ModCmd},
			key:            hotkey.KeySpace,
			expectConflict: true,
		},
		{
			name:           "No conflict (Ctrl+Option+Space)",
			modifiers:      []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key:            hotkey.KeySpace,
			expectConflict: false,
		},
		{
			name:           "Force Quit conflict (Cmd+Option+Esc)",
			modifiers:      []hotkey.Modifier{ModCmd, ModAlt},
			key:            hotkey.KeyEscape,
			expectConflict: true,
		},
		{
			name:           "Bare Esc conflicts",
			modifiers:      nil,
			key:            hotkey.KeyEscape,
			expectConflict: true,
		},
		{
			name:           "Task Manager conflict in any order (Shift+Ctrl+Esc)",
			modifiers:      []hotkey.Modifier{hotkey.ModShift, hotkey.ModCtrl},
			key:            hotkey.KeyEscape,
			expectConflict: true,
		},
		{
			name:           "No conflict (Ctrl+Option+Esc)",
			modifiers:      []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key:            hotkey.KeyEscape,
			expectConflict: false,
		},
		{
			name:           "Repeated modifier is not a different set",
			modifiers:      []hotkey.Modifier{ModCmd, ModCmd},
			key:            hotkey.KeySpace,
			expectConflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := CheckConflicts(tt.modifiers, tt.key)
			hasConflict := len(conflicts) > 0

			if hasConflict != tt.expectConflict {
				t.Errorf("Expected conflict=%v, got conflict=%v (found %d conflicts)",
					tt.expectConflict, hasConflict, len(conflicts))
			}
		})
	}
}

func TestFormatHotkey(t *testing.T) {
	tests := []struct {
		name      string
		modifiers []hotkey.Modifier
		key       hotkey.Key
		expected  string
	}{
		{
			name:      "Ctrl+Option+Space",
			modifiers: []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key:       hotkey.KeySpace,
			expected:  "⌃⌥Space",
		},
		{
			name:      "Cmd+Space",
			modifiers: []hotkey.Modifier{ModCmd},
			key:       hotkey.KeySpace,
			expected:  "⌘Space",
		},
		{
			name:      "Cmd+Shift+A",
			modifiers: []hotkey.Modifier{ModCmd, hotkey.ModShift},
			key:       hotkey.KeyA,
			expected:  "⌘⇧A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatHotkey(tt.modifiers, tt.key)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestHotkeyMatches(t *testing.T) {
	tests := []struct {
		name     string
		mods1    []hotkey.Modifier
		key1     hotkey.Key
		mods2    []hotkey.Modifier
		key2     hotkey.Key
		expected bool
	}{
		{
			name:     "Same hotkey",
			mods1:    []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key1:     hotkey.KeySpace,
			mods2:    []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key2:     hotkey.KeySpace,
			expected: true,
		},
		{
			name:     "Different key",
			mods1:    []hotkey.Modifier{hotkey.ModCtrl},
			key1:     hotkey.KeySpace,
			mods2:    []hotkey.Modifier{hotkey.ModCtrl},
			key2:     hotkey.KeyReturn,
			expected: false,
		},
		{
			name:     "Different modifiers",
			mods1:    []hotkey.Modifier{hotkey.ModCtrl},
			key1:     hotkey.KeySpace,
			mods2:    []hotkey.Modifier{ModCmd},
			key2:     hotkey.KeySpace,
			expected: false,
		},
		{
			name:     "Same modifiers, different order",
			mods1:    []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			key1:     hotkey.KeySpace,
			mods2:    []hotkey.Modifier{ModAlt, hotkey.ModCtrl},
			key2:     hotkey.KeySpace,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hotkeyMatches(tt.mods1, tt.key1, tt.mods2, tt.key2)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := New()

	// Initially should not be running
	if m.IsRunning() {
		t.Error("Manager should not be running initially")
	}

	// Close should be safe on non-running manager
	if err := m.Close(); err != nil {
		t.Errorf("Close() on non-running manager returned error: %v", err)
	}

	// Note: We cannot test actual registration here because it requires
	// proper permissions and may conflict with the test environment.
	// Integration tests should be run separately.
}

func TestEventChannel(t *testing.T) {
	m := New()

	eventChan := m.Events()
	if eventChan == nil {
		t.Fatal("Events() returned nil channel")
	}

	// Channel should be non-blocking initially
	select {
	case <-eventChan:
		t.Error("Events channel should be empty initially")
	case <-time.After(10 * time.Millisecond):
		// Expected: timeout
	}
}

func TestGetConfig(t *testing.T) {
	m := New()

	config := m.GetConfig()

	// Check default configuration
	if len(config.Modifiers) != 2 {
		t.Errorf("Expected 2 default modifiers, got %d", len(config.Modifiers))
	}

	if config.Key != hotkey.KeySpace {
		t.Errorf("Expected default key to be Space, got %v", config.Key)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name     string
		expected hotkey.Key
	}{
		{"Space", hotkey.KeySpace},
		{"esc", hotkey.KeyEscape},
		{"Enter", hotkey.KeyReturn},
		{"s", hotkey.KeyS},
		{"Z", hotkey.KeyZ},
		{"7", hotkey.Key7},
		{"\u00a0", hotkey.KeySpace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.name)
			if err != nil {
				t.Fatalf("ParseKey failed: %v", err)
			}
			if key != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, key)
			}
			if tt.name != "esc" && tt.name != "Enter" && keyToString(key) == "Unknown" {
				t.Errorf("Expected %v to have a display name", key)
			}
		})
	}

	for _, bad := range []string{"", "F13", "ß"} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestFromSettings(t *testing.T) {
	config, err := FromSettings(true, false, true, false, "Space")
	if err != nil {
		t.Fatalf("FromSettings failed: %v", err)
	}
	if FormatHotkey(config.Modifiers, config.Key) != "⌃⌥Space" {
		t.Errorf("Unexpected hotkey: %s", FormatHotkey(config.Modifiers, config.Key))
	}

	if _, err := FromSettings(false, false, false, false, "Space"); err == nil {
		t.Error("Expected error without modifiers")
	}
	if _, err := FromSettings(true, false, false, false, "Nope"); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestForward(t *testing.T) {
	events := make(chan Event, 3)
	events <- Event{Type: Pressed}
	events <- Event{Type: Pressed}
	close(events)

	presses := 0
	Forward(context.Background(), events, func() { presses++ })

	if presses != 2 {
		t.Errorf("Expected 2 presses, got %d", presses)
	}
}

func TestForward_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		Forward(ctx, make(chan Event), func() {})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after cancel")
	}
}
