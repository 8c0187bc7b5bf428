package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yok-tottii/EzS2T-Realtime/internal/config"
)

type fakePermissions bool

func (f fakePermissions) AreAllPermissionsGranted() bool { return bool(f) }

func newTestWizard(t *testing.T) *SetupWizard {
	t.Helper()
	wizard, err := NewSetupWizard(filepath.Join(t.TempDir(), "app", "config.yaml"))
	if err != nil {
		t.Fatalf("Failed to create wizard: %v", err)
	}
	return wizard
}

func TestNewSetupWizard(t *testing.T) {
	wizard := newTestWizard(t)

	if wizard.configDir == "" {
		t.Error("Expected configDir to be set")
	}

	if filepath.Base(wizard.setupFlagFile) != ".setup_completed" {
		t.Errorf("Expected .setup_completed flag, got %s", wizard.setupFlagFile)
	}

	info, err := os.Stat(wizard.GetConfigDir())
	if err != nil || !info.IsDir() {
		t.Errorf("Config directory should exist: %v", err)
	}

	if filepath.Base(wizard.GetConfigPath()) != "config.yaml" {
		t.Errorf("Expected config.yaml, got %s", filepath.Base(wizard.GetConfigPath()))
	}
}

func TestIsFirstRun(t *testing.T) {
	wizard := newTestWizard(t)

	if !wizard.IsFirstRun() {
		t.Error("Expected IsFirstRun to return true when config doesn't exist")
	}

	if err := os.WriteFile(wizard.configPath, []byte("mode: reply\n"), 0600); err != nil {
		t.Fatalf("Failed to create dummy config: %v", err)
	}

	if wizard.IsFirstRun() {
		t.Error("Expected IsFirstRun to return false when config exists")
	}
}

func TestMarkSetupCompleted(t *testing.T) {
	wizard := newTestWizard(t)

	if wizard.IsSetupCompleted() {
		t.Error("Expected IsSetupCompleted to return false when flag doesn't exist")
	}

	if err := wizard.MarkSetupCompleted(); err != nil {
		t.Fatalf("Failed to mark setup completed: %v", err)
	}

	if _, err := os.Stat(wizard.setupFlagFile); err != nil {
		t.Errorf("Setup flag file was not created: %v", err)
	}

	if !wizard.IsSetupCompleted() {
		t.Error("Expected IsSetupCompleted to return true after marking completed")
	}
}

func TestShouldShowWizard(t *testing.T) {
	wizard := newTestWizard(t)

	if !wizard.ShouldShowWizard() {
		t.Error("Expected ShouldShowWizard to return true when config doesn't exist")
	}

	if _, err := wizard.EnsureConfig(config.DefaultConfig()); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if !wizard.ShouldShowWizard() {
		t.Error("Expected ShouldShowWizard to return true when setup not completed")
	}

	if err := wizard.MarkSetupCompleted(); err != nil {
		t.Fatalf("Failed to mark setup completed: %v", err)
	}

	if wizard.ShouldShowWizard() {
		t.Error("Expected ShouldShowWizard to return false when setup is completed")
	}
}

func TestEnsureConfig(t *testing.T) {
	wizard := newTestWizard(t)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeSearch

	created, err := wizard.EnsureConfig(cfg)
	if err != nil {
		t.Fatalf("EnsureConfig failed: %v", err)
	}
	if !created {
		t.Error("Expected config to be created on first run")
	}

	loaded, err := config.Load(wizard.GetConfigPath())
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if loaded.Mode != config.ModeSearch {
		t.Errorf("Expected mode search, got %s", loaded.Mode)
	}

	created, err = wizard.EnsureConfig(config.DefaultConfig())
	if err != nil {
		t.Fatalf("EnsureConfig failed: %v", err)
	}
	if created {
		t.Error("Expected existing config to be left alone")
	}
}

func TestGetProgress(t *testing.T) {
	wizard := newTestWizard(t)

	cfg := config.DefaultConfig()
	progress := wizard.GetProgress(cfg, fakePermissions(false))

	if progress.CredentialsSet {
		t.Error("Expected CredentialsSet to be false without keys")
	}
	if progress.Missing == "" {
		t.Error("Expected Missing to describe the absent credentials")
	}
	if progress.PermissionsGranted {
		t.Error("Expected PermissionsGranted to be false")
	}
	if !progress.HotkeyConfigured {
		t.Error("Expected default hotkey to be valid")
	}
	if progress.Complete() {
		t.Error("Expected progress to be incomplete")
	}

	cfg.Realtime.APIKey = "key"
	cfg.Realtime.Endpoint = "https://example.openai.azure.com"
	progress = wizard.GetProgress(cfg, nil)

	if !progress.Complete() {
		t.Errorf("Expected progress to be complete, got %+v", progress)
	}
}

func TestGetProgress_InvalidHotkey(t *testing.T) {
	wizard := newTestWizard(t)

	cfg := config.DefaultConfig()
	cfg.Hotkey = config.HotkeyConfig{Key: "Space"}

	if wizard.GetProgress(cfg, nil).HotkeyConfigured {
		t.Error("Expected hotkey without modifiers to be unconfigured")
	}
}

func TestResetSetup(t *testing.T) {
	wizard := newTestWizard(t)

	if err := wizard.MarkSetupCompleted(); err != nil {
		t.Fatalf("Failed to mark setup completed: %v", err)
	}

	if err := wizard.ResetSetup(); err != nil {
		t.Fatalf("Failed to reset setup: %v", err)
	}

	if wizard.IsSetupCompleted() {
		t.Error("Expected IsSetupCompleted to return false after reset")
	}

	// Resetting twice is fine
	if err := wizard.ResetSetup(); err != nil {
		t.Errorf("Expected second reset to succeed, got %v", err)
	}
}

func TestConcurrentWizardOperations(t *testing.T) {
	wizard := newTestWizard(t)
	cfg := config.DefaultConfig()

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			wizard.IsSetupCompleted()
			wizard.ShouldShowWizard()
			wizard.GetProgress(cfg, nil)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
