package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yok-tottii/EzS2T-Realtime/internal/config"
	"github.com/yok-tottii/EzS2T-Realtime/internal/hotkey"
)

// PermissionChecker reports whether the OS permissions are in place
type PermissionChecker interface {
	AreAllPermissionsGranted() bool
}

// SetupWizard tracks first-run setup next to the configuration file
type SetupWizard struct {
	configDir     string
	configPath    string
	setupFlagFile string
	mu            sync.RWMutex
}

// NewSetupWizard creates a setup wizard for the configuration at configPath
func NewSetupWizard(configPath string) (*SetupWizard, error) {
	configDir := filepath.Dir(configPath)

	// Ensure config directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &SetupWizard{
		configDir:     configDir,
		configPath:    configPath,
		setupFlagFile: filepath.Join(configDir, ".setup_completed"),
	}, nil
}

// IsFirstRun checks if this is the first run of the application
func (w *SetupWizard) IsFirstRun() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, err := os.Stat(w.configPath)
	return os.IsNotExist(err)
}

// IsSetupCompleted checks if the initial setup has been completed
func (w *SetupWizard) IsSetupCompleted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, err := os.Stat(w.setupFlagFile)
	return !os.IsNotExist(err)
}

// MarkSetupCompleted marks the setup as completed
func (w *SetupWizard) MarkSetupCompleted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.Create(w.setupFlagFile)
	if err != nil {
		return fmt.Errorf("failed to create setup flag file: %w", err)
	}
	return file.Close()
}

// ShouldShowWizard returns true if the config is missing or setup has not been completed
func (w *SetupWizard) ShouldShowWizard() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, err := os.Stat(w.configPath); os.IsNotExist(err) {
		return true
	}

	_, err := os.Stat(w.setupFlagFile)
	return os.IsNotExist(err)
}

// EnsureConfig writes cfg to the config path on first run so the user has a
// file to edit. It reports whether the file was created.
func (w *SetupWizard) EnsureConfig(cfg *config.Config) (bool, error) {
	if !w.IsFirstRun() {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := cfg.Save(w.configPath); err != nil {
		return false, err
	}
	return true, nil
}

// SetupProgress is the completion status of each setup step
type SetupProgress struct {
	CredentialsSet     bool   `json:"credentials_set"`
	PermissionsGranted bool   `json:"permissions_granted"`
	HotkeyConfigured   bool   `json:"hotkey_configured"`
	Missing            string `json:"missing,omitempty"`
}

// Complete reports whether every step is done
func (p SetupProgress) Complete() bool {
	return p.CredentialsSet && p.PermissionsGranted && p.HotkeyConfigured
}

// GetProgress evaluates the setup steps against cfg. A nil checker counts
// as granted.
func (w *SetupWizard) GetProgress(cfg *config.Config, perms PermissionChecker) SetupProgress {
	var progress SetupProgress

	if err := cfg.ValidateCredentials(); err != nil {
		progress.Missing = err.Error()
	} else {
		progress.CredentialsSet = true
	}

	progress.PermissionsGranted = perms == nil || perms.AreAllPermissionsGranted()

	hk := cfg.Clone().Hotkey
	if _, err := hotkey.FromSettings(hk.Ctrl, hk.Shift, hk.Alt, hk.Cmd, hk.Key); err == nil {
		progress.HotkeyConfigured = true
	}

	return progress
}

// ResetSetup resets the setup state
func (w *SetupWizard) ResetSetup() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.Remove(w.setupFlagFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove setup flag file: %w", err)
	}

	return nil
}

// GetConfigDir returns the configuration directory
func (w *SetupWizard) GetConfigDir() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.configDir
}

// GetConfigPath returns the configuration file path
func (w *SetupWizard) GetConfigPath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.configPath
}
