package hotkey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// EventType represents the type of hotkey event
type EventType int

const (
	// Pressed indicates the hotkey was pressed
	Pressed EventType = iota
)

// Event represents a hotkey event
type Event struct {
	Type EventType
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a new hotkey manager with default configuration
// Default: Ctrl+Option+Space
func New() *Manager {
	return &Manager{
		config: Config{
			Modifiers: []hotkey.Modifier{hotkey.ModCtrl, ModAlt},
			Key:       hotkey.KeySpace,
		},
		eventChan: make(chan Event, 1),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 1)

	// Create hotkey instance
	hk := hotkey.New(m.config.Modifiers, m.config.Key)

	// Register the hotkey
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}

	m.hk = hk
	m.running = true

	// Start listening in a goroutine
	m.wg.Add(1)
	go m.listen()

	return nil
}

// RegisterDefault registers the default hotkey (Ctrl+Option+Space)
func (m *Manager) RegisterDefault() error {
	return m.Register(m.config)
}

// listen monitors key presses. A press is dropped when the previous one
// has not been consumed yet.
func (m *Manager) listen() {
	defer m.wg.Done()

	for {
		select {
		case <-m.hk.Keydown():
			select {
			case m.eventChan <- Event{Type: Pressed}:
			default:
			}

		case <-m.hk.Keyup():

		case <-m.stopChan:
			return
		}
	}
}

// Events returns the event channel for receiving hotkey events
func (m *Manager) Events() <-chan Event {
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	// Signal the listener to stop
	close(m.stopChan)

	// Wait for the listener goroutine to finish
	m.wg.Wait()

	// Unregister the hotkey
	// 注意: エラーが発生しても続行し、必ずクリーンアップを実行する
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	// Close event channel to notify consumers of shutdown
	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	// 必ず running フラグを false にセット
	// これにより、Unregister() が失敗しても次の Register() が可能になる
	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a deep copy of the current hotkey configuration
// to prevent callers from modifying the Manager's internal state
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Create a shallow copy of the config struct
	configCopy := m.config

	// Deep copy the Modifiers slice to prevent caller from mutating it
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}

// Forward calls onPress for every press on events until ctx ends or the
// channel closes
func Forward(ctx context.Context, events <-chan Event, onPress func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == Pressed {
				onPress()
			}
		}
	}
}

// FromSettings builds a Config from modifier flags and a key name
func FromSettings(ctrl, shift, alt, cmd bool, key string) (Config, error) {
	k, err := ParseKey(key)
	if err != nil {
		return Config{}, err
	}

	var mods []hotkey.Modifier
	if ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if shift {
		mods = append(mods, hotkey.ModShift)
	}
	if alt {
		mods = append(mods, ModAlt)
	}
	if cmd {
		mods = append(mods, ModCmd)
	}
	if len(mods) == 0 {
		return Config{}, fmt.Errorf("hotkey needs at least one modifier")
	}

	return Config{Modifiers: mods, Key: k}, nil
}

// ParseKey converts a key name such as "Space", "Esc", "A" or "7"
func ParseKey(name string) (hotkey.Key, error) {
	// Browsers report the space bar as a non-breaking space
	name = strings.ReplaceAll(name, "\u00a0", " ")

	switch strings.ToLower(name) {
	case "space", " ":
		return hotkey.KeySpace, nil
	case "esc", "escape":
		return hotkey.KeyEscape, nil
	case "return", "enter":
		return hotkey.KeyReturn, nil
	case "tab":
		return hotkey.KeyTab, nil
	case "delete":
		return hotkey.KeyDelete, nil
	}

	if len(name) == 1 {
		c := strings.ToUpper(name)[0]
		switch {
		case c >= 'A' && c <= 'Z':
			return letterKeys[c-'A'], nil
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], nil
		}
	}

	return 0, fmt.Errorf("unsupported hotkey key: %q", name)
}

var letterKeys = [...]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF, hotkey.KeyG,
	hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL, hotkey.KeyM, hotkey.KeyN,
	hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR, hotkey.KeyS, hotkey.KeyT, hotkey.KeyU,
	hotkey.KeyV, hotkey.KeyW, hotkey.KeyX, hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [...]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}
