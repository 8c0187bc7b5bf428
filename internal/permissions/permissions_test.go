package permissions

import (
	"errors"
	"strings"
	"testing"

	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
)

func fakeChecker(mic, acc PermissionStatus, opened *[]string) *PermissionChecker {
	return &PermissionChecker{probe: probe{
		microphone:    func() PermissionStatus { return mic },
		accessibility: func() PermissionStatus { return acc },
		openSettings: func(permission string) error {
			*opened = append(*opened, permission)
			return nil
		},
	}}
}

func TestNewPermissionChecker(t *testing.T) {
	pc := NewPermissionChecker()

	if pc == nil {
		t.Fatal("Expected PermissionChecker to be created")
	}

	status := pc.CheckMicrophonePermission()
	if status < PermissionNotDetermined || status > PermissionAuthorized {
		t.Errorf("Expected valid permission status, got %d", status)
	}

	status = pc.CheckAccessibilityPermission()
	if status != PermissionAuthorized && status != PermissionDenied {
		t.Errorf("Expected Authorized or Denied, got %v", status)
	}
}

func TestCheckAllPermissions(t *testing.T) {
	tests := []struct {
		name       string
		mic, acc   PermissionStatus
		expectMic  bool
		expectAcc  bool
		expectsAll bool
	}{
		{"AllGranted", PermissionAuthorized, PermissionAuthorized, true, true, true},
		{"MicDenied", PermissionDenied, PermissionAuthorized, false, true, false},
		{"MicUndetermined", PermissionNotDetermined, PermissionAuthorized, false, true, false},
		{"AccessibilityDenied", PermissionAuthorized, PermissionDenied, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := fakeChecker(tt.mic, tt.acc, &[]string{})

			perms := pc.CheckAllPermissions()
			if perms[Microphone] != tt.expectMic {
				t.Errorf("Expected microphone %v, got %v", tt.expectMic, perms[Microphone])
			}
			if perms[Accessibility] != tt.expectAcc {
				t.Errorf("Expected accessibility %v, got %v", tt.expectAcc, perms[Accessibility])
			}
			if pc.AreAllPermissionsGranted() != tt.expectsAll {
				t.Errorf("Expected AreAllPermissionsGranted %v", tt.expectsAll)
			}
		})
	}
}

func TestRequestPermissions(t *testing.T) {
	var opened []string
	pc := fakeChecker(PermissionDenied, PermissionDenied, &opened)

	if err := pc.RequestMicrophonePermission(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := pc.RequestAccessibilityPermission(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if strings.Join(opened, ",") != "microphone,accessibility" {
		t.Errorf("Expected both settings panes opened, got %v", opened)
	}
}

func TestRequestPermission_Failure(t *testing.T) {
	pc := fakeChecker(PermissionDenied, PermissionDenied, &[]string{})
	pc.probe.openSettings = func(string) error { return errors.New("no open") }

	if err := pc.RequestMicrophonePermission(); err == nil {
		t.Error("Expected error from settings opener")
	}
}

func TestPermissionStatusString(t *testing.T) {
	tests := []struct {
		status   PermissionStatus
		expected string
	}{
		{PermissionNotDetermined, "NotDetermined"},
		{PermissionRestricted, "Restricted"},
		{PermissionDenied, "Denied"},
		{PermissionAuthorized, "Authorized"},
		{PermissionStatus(99), "Unknown"},
	}

	for _, test := range tests {
		result := test.status.String()
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestGetPermissionStatusMessage(t *testing.T) {
	tests := []struct {
		status   PermissionStatus
		expected string
	}{
		{PermissionNotDetermined, "Permission not yet determined"},
		{PermissionRestricted, "Permission restricted by parental controls"},
		{PermissionDenied, "Permission denied"},
		{PermissionAuthorized, "Permission authorized"},
	}

	for _, test := range tests {
		result := GetPermissionStatusMessage(test.status)
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestGetMissingPermissionsMessage(t *testing.T) {
	translator, err := i18n.NewDefault(i18n.LanguageEnglish)
	if err != nil {
		t.Fatalf("Failed to load catalogs: %v", err)
	}
	i18n.GlobalTranslator = translator
	defer func() { i18n.GlobalTranslator = nil }()

	granted := fakeChecker(PermissionAuthorized, PermissionAuthorized, &[]string{})
	if message := granted.GetMissingPermissionsMessage(); message != "" {
		t.Errorf("Expected empty message, got %q", message)
	}

	missing := fakeChecker(PermissionDenied, PermissionAuthorized, &[]string{})
	message := missing.GetMissingPermissionsMessage()
	if !strings.Contains(message, "Microphone") {
		t.Errorf("Expected microphone in message, got %q", message)
	}
	if strings.Contains(message, "Accessibility") {
		t.Errorf("Expected accessibility to be absent, got %q", message)
	}
}

func TestPermissionStatusValues(t *testing.T) {
	if PermissionNotDetermined != 0 {
		t.Errorf("Expected PermissionNotDetermined to be 0, got %d", PermissionNotDetermined)
	}

	if PermissionRestricted != 1 {
		t.Errorf("Expected PermissionRestricted to be 1, got %d", PermissionRestricted)
	}

	if PermissionDenied != 2 {
		t.Errorf("Expected PermissionDenied to be 2, got %d", PermissionDenied)
	}

	if PermissionAuthorized != 3 {
		t.Errorf("Expected PermissionAuthorized to be 3, got %d", PermissionAuthorized)
	}
}
