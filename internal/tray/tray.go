package tray

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
	"github.com/yok-tottii/EzS2T-Realtime/internal/turn"
)

const appName = "EzS2T-Realtime"

// State represents what the tray icon shows
type State int

const (
	StateIdle State = iota
	StateListening
	StateResponding
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateResponding:
		return "Responding"
	default:
		return "Unknown"
	}
}

// StateFromPhase maps a turn phase to the icon state
func StateFromPhase(p turn.Phase) State {
	switch {
	case p == turn.PhaseSpeechActive || p == turn.PhaseSilencePending:
		return StateListening
	case p.Busy():
		return StateResponding
	default:
		return StateIdle
	}
}

// Config holds tray manager configuration
type Config struct {
	Mode           string
	OnReady        func() // Called when systray is ready for initialization
	OnStop         func()
	OnCopyLast     func()
	OnSettings     func()
	OnDeviceChange func(deviceID int)
	OnQuit         func()
	Logger         *slog.Logger
}

// Manager manages the system tray icon and menu
type Manager struct {
	config Config
	log    *slog.Logger

	mu    sync.Mutex
	ready bool
	phase turn.Phase
	state State

	menuStatus   *systray.MenuItem
	menuMode     *systray.MenuItem
	menuStop     *systray.MenuItem
	menuCopy     *systray.MenuItem
	menuSettings *systray.MenuItem
	menuDevices  *systray.MenuItem
	menuQuit     *systray.MenuItem

	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc

	icons map[State][]byte
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		config: config,
		log:    log.With("component", "tray"),
		phase:  turn.PhaseIdle,
		state:  StateIdle,
	}

	// Load icons once at initialization
	m.icons = map[State][]byte{
		StateIdle:       m.loadIconData("speech_to_text_32dp_E3E3E3_FILL0_wght400_GRAD0_opsz40.png", color.RGBA{0xE3, 0xE3, 0xE3, 0xFF}),
		StateListening:  m.loadIconData("graphic_eq_32dp_F19E39_FILL0_wght400_GRAD0_opsz40.png", color.RGBA{0xF1, 0x9E, 0x39, 0xFF}),
		StateResponding: m.loadIconData("hourglass_empty_32dp_75FB4C_FILL0_wght400_GRAD0_opsz40.png", color.RGBA{0x75, 0xFB, 0x4C, 0xFF}),
	}

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	m.menuStatus = systray.AddMenuItem(statusLabel(turn.PhaseIdle), "")
	m.menuStatus.Disable()
	m.menuMode = systray.AddMenuItem(i18n.TF("menu.mode", map[string]string{"mode": m.config.Mode}), "")
	m.menuMode.Disable()

	systray.AddSeparator()

	m.menuStop = systray.AddMenuItem(i18n.T("menu.stop"), "Stop the current response")
	m.menuCopy = systray.AddMenuItem(i18n.T("menu.copy_last"), "Copy the last response text")
	m.menuSettings = systray.AddMenuItem(i18n.T("menu.settings"), "Open settings page")
	m.menuDevices = systray.AddMenuItem(i18n.T("menu.input_device"), "Select input device")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem(i18n.T("menu.quit"), "Quit the application")

	m.mu.Lock()
	m.ready = true
	m.apply()
	m.mu.Unlock()

	go m.handleMenuEvents()

	if m.config.OnReady != nil {
		m.config.OnReady()
	}
}

func (m *Manager) onExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	m.cancelDeviceMenu()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuStop.ClickedCh:
			call(m.config.OnStop)
		case <-m.menuCopy.ClickedCh:
			call(m.config.OnCopyLast)
		case <-m.menuSettings.ClickedCh:
			call(m.config.OnSettings)
		case <-m.menuQuit.ClickedCh:
			call(m.config.OnQuit)
			systray.Quit()
			return
		}
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// SetPhase reflects a turn phase in the icon, tooltip and menu
func (m *Manager) SetPhase(p turn.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = p
	m.state = StateFromPhase(p)
	if m.ready {
		m.apply()
	}
}

// State returns the current icon state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// apply pushes the current phase to systray. Callers hold mu.
func (m *Manager) apply() {
	systray.SetIcon(m.icons[m.state])
	systray.SetTooltip(tooltipFor(m.phase))
	m.menuStatus.SetTitle(statusLabel(m.phase))
	if m.phase.Busy() {
		m.menuStop.Enable()
	} else {
		m.menuStop.Disable()
	}
}

// UpdateDeviceMenu rebuilds the input device submenu. selectedID of -1
// marks the system default.
func (m *Manager) UpdateDeviceMenu(devices []audio.Device, selectedID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return
	}

	m.cancelDeviceMenu()

	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, entry := range deviceEntries(devices, selectedID) {
		menuItem := m.menuDevices.AddSubMenuItem(entry.title, entry.tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(ctx context.Context, id int, item *systray.MenuItem) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.config.OnDeviceChange != nil {
						m.config.OnDeviceChange(id)
					}
				}
			}
		}(ctx, entry.id, menuItem)
	}
}

func (m *Manager) cancelDeviceMenu() {
	for _, cancel := range m.deviceCancelFuncs {
		cancel()
	}
	m.deviceCancelFuncs = nil
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

type deviceEntry struct {
	id      int
	title   string
	tooltip string
}

// deviceEntries lists capture-capable devices with the selection marked
func deviceEntries(devices []audio.Device, selectedID int) []deviceEntry {
	var entries []deviceEntry
	for _, d := range devices {
		if d.InputChannels == 0 {
			continue
		}

		current := d.ID == selectedID || (selectedID < 0 && d.IsDefault)
		title := d.Name
		if current {
			title = "✓ " + title
		}

		tooltip := ""
		if d.IsDefault {
			tooltip = "System default device"
		}

		entries = append(entries, deviceEntry{id: d.ID, title: title, tooltip: tooltip})
	}
	return entries
}

func statusLabel(p turn.Phase) string {
	return i18n.TF("menu.status", map[string]string{"status": i18n.T(statusKey(p))})
}

func tooltipFor(p turn.Phase) string {
	return appName + " - " + i18n.T(statusKey(p))
}

func statusKey(p turn.Phase) string {
	switch p {
	case turn.PhaseIdle:
		return "status.waiting"
	case turn.PhaseSpeechActive:
		return "status.listening"
	case turn.PhaseSilencePending:
		return "status.silence"
	case turn.PhaseFinalizing, turn.PhaseSubmitted:
		return "status.finalizing"
	case turn.PhaseResponding:
		return "status.responding"
	default:
		return "status.idle"
	}
}

// loadIconData loads an icon from the assets directory.
// If the file cannot be loaded, it returns a generated placeholder icon.
func (m *Manager) loadIconData(filename string, tint color.RGBA) []byte {
	exe, err := os.Executable()
	if err != nil {
		m.log.Warn("Could not resolve executable path", "error", err)
		return fallbackIcon(tint)
	}

	// Try to load icon from assets/icon/ relative to executable
	iconPath := filepath.Join(filepath.Dir(exe), "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Using placeholder icon", "path", iconPath, "error", err)
		return fallbackIcon(tint)
	}

	return data
}

// fallbackIcon renders a 16x16 filled circle
func fallbackIcon(tint color.RGBA) []byte {
	const size = 16
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := 2*x+1-size, 2*y+1-size
			if dx*dx+dy*dy <= (size-2)*(size-2) {
				img.SetRGBA(x, y, tint)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
