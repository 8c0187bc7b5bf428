package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/config"
	"github.com/yok-tottii/EzS2T-Realtime/internal/hotkey"
	"github.com/yok-tottii/EzS2T-Realtime/internal/wizard"
)

// PermissionReporter reports OS permission grants by name
type PermissionReporter interface {
	CheckAllPermissions() map[string]bool
}

// Settings that only take effect after a restart
var restartKeys = map[string]bool{
	"voice":            true,
	"playback":         true,
	"input_device_id":  true,
	"output_device_id": true,
	"hotkey":           true,
}

// Handler manages API endpoints
type Handler struct {
	config      *config.Config
	configPath  string
	status      *Status
	wizard      *wizard.SetupWizard
	devices     audio.DeviceLister
	permissions PermissionReporter
	stop        func() bool
	log         *slog.Logger

	onSettingsChanged func(*config.Config)
}

// New creates a new API handler. cfg is the persisted configuration;
// settings changes are saved to configPath.
func New(cfg *config.Config, configPath string, status *Status, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		config:     cfg,
		configPath: configPath,
		status:     status,
		log:        log.With("component", "api"),
	}
}

// SetStopFunc sets the function behind POST /api/stop
func (h *Handler) SetStopFunc(stop func() bool) {
	h.stop = stop
}

// SetDeviceLister sets the audio device source
func (h *Handler) SetDeviceLister(devices audio.DeviceLister) {
	h.devices = devices
}

// SetPermissionReporter sets the OS permission source
func (h *Handler) SetPermissionReporter(p PermissionReporter) {
	h.permissions = p
}

// SetWizard sets the setup wizard marked complete on the first saved settings
func (h *Handler) SetWizard(wiz *wizard.SetupWizard) {
	h.wizard = wiz
}

// OnSettingsChanged registers a callback receiving a copy of the saved settings
func (h *Handler) OnSettingsChanged(fn func(*config.Config)) {
	h.onSettingsChanged = fn
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/stop", h.handleStop)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/permissions", h.handlePermissions)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.status == nil {
		http.Error(w, "Status not available", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// handleStop handles POST /api/stop. It behaves like a hotkey press.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stop == nil {
		http.Error(w, "Stop not available", http.StatusServiceUnavailable)
		return
	}

	accepted := h.stop()
	h.log.Debug("stop requested over api", "accepted", accepted)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration with secrets masked
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Redacted())
}

// putSettings updates the runtime-adjustable settings and saves them
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if raw, ok := updates["hotkey"].(map[string]interface{}); ok {
		if err := validateHotkeyUpdate(h.config.Clone().Hotkey, raw); err != nil {
			http.Error(w, fmt.Sprintf("Invalid hotkey: %v", err), http.StatusBadRequest)
			return
		}
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(h.configPath); err != nil {
		h.log.Error("failed to save settings", "path", h.configPath, "err", err)
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if h.wizard != nil {
		if err := h.wizard.MarkSetupCompleted(); err != nil {
			// 設定保存は成功しているので処理を継続
			h.log.Warn("failed to mark setup completed", "err", err)
		}
	}

	if h.onSettingsChanged != nil {
		h.onSettingsChanged(h.config.Clone())
	}

	restart := false
	for key := range updates {
		restart = restart || restartKeys[key]
	}
	h.log.Info("settings saved", "keys", len(updates), "restart_required", restart)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"restart_required": restart,
	})
}

// validateHotkeyUpdate checks a partial hotkey update against the current one
func validateHotkeyUpdate(current config.HotkeyConfig, raw map[string]interface{}) error {
	merged := current
	if v, ok := raw["ctrl"].(bool); ok {
		merged.Ctrl = v
	}
	if v, ok := raw["shift"].(bool); ok {
		merged.Shift = v
	}
	if v, ok := raw["alt"].(bool); ok {
		merged.Alt = v
	}
	if v, ok := raw["cmd"].(bool); ok {
		merged.Cmd = v
	}
	if v, ok := raw["key"].(string); ok {
		merged.Key = v
	}
	_, err := hotkey.FromSettings(merged.Ctrl, merged.Shift, merged.Alt, merged.Cmd, merged.Key)
	return err
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request config.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	hk, err := hotkey.FromSettings(request.Ctrl, request.Shift, request.Alt, request.Cmd, request.Key)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":     false,
			"error":     err.Error(),
			"conflicts": []string{},
		})
		return
	}

	conflictNames := []string{}
	for _, c := range hotkey.CheckConflicts(hk.Modifiers, hk.Key) {
		conflictNames = append(conflictNames, c.Name)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"hotkey":    hotkey.FormatHotkey(hk.Modifiers, hk.Key),
		"conflicts": conflictNames,
	})
}

// Device represents an audio device
type Device struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	InputChannels   int    `json:"input_channels"`
	OutputChannels  int    `json:"output_channels"`
	IsDefault       bool   `json:"is_default"`
	IsDefaultOutput bool   `json:"is_default_output"`
}

// convertAudioDevices converts audio.Device slice to api.Device slice
func convertAudioDevices(audioDevices []audio.Device) []Device {
	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:              dev.ID,
			Name:            dev.Name,
			InputChannels:   dev.InputChannels,
			OutputChannels:  dev.OutputChannels,
			IsDefault:       dev.IsDefault,
			IsDefaultOutput: dev.IsDefaultOutput,
		})
	}
	return devices
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Without a driver only the system default can be offered
	devices := []Device{{ID: -1, Name: "System Default", IsDefault: true, IsDefaultOutput: true}}
	if h.devices != nil {
		audioDevices, err := h.devices.ListDevices()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
			return
		}
		devices = convertAudioDevices(audioDevices)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
	})
}

// Permission represents a system permission status
type Permission struct {
	Granted bool `json:"granted"`
}

// handlePermissions handles GET /api/permissions
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.permissions == nil {
		http.Error(w, "Permissions not available", http.StatusServiceUnavailable)
		return
	}

	permissions := make(map[string]Permission)
	for name, granted := range h.permissions.CheckAllPermissions() {
		permissions[name] = Permission{Granted: granted}
	}

	writeJSON(w, http.StatusOK, permissions)
}
