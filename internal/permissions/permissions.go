package permissions

import (
	"strings"

	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
)

// PermissionStatus represents the status of a system permission
type PermissionStatus int

const (
	// PermissionNotDetermined means the user hasn't been asked yet
	PermissionNotDetermined PermissionStatus = 0
	// PermissionRestricted means the permission is restricted by parental controls
	PermissionRestricted PermissionStatus = 1
	// PermissionDenied means the user has explicitly denied the permission
	PermissionDenied PermissionStatus = 2
	// PermissionAuthorized means the user has authorized the permission
	PermissionAuthorized PermissionStatus = 3
)

// Permission names used in reports and the settings API
const (
	Microphone    = "microphone"
	Accessibility = "accessibility"
)

// probe is the platform hook set behind the checker
type probe struct {
	microphone    func() PermissionStatus
	accessibility func() PermissionStatus
	openSettings  func(permission string) error
}

// PermissionChecker checks the OS permissions capture and the global hotkey depend on
type PermissionChecker struct {
	probe probe
}

// NewPermissionChecker creates a checker for the running platform
func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{probe: platformProbe()}
}

// CheckMicrophonePermission checks if the application has microphone access permission
func (pc *PermissionChecker) CheckMicrophonePermission() PermissionStatus {
	return pc.probe.microphone()
}

// CheckAccessibilityPermission checks if the application has accessibility permission
func (pc *PermissionChecker) CheckAccessibilityPermission() PermissionStatus {
	return pc.probe.accessibility()
}

// IsMicrophoneAuthorized returns whether microphone permission is granted
func (pc *PermissionChecker) IsMicrophoneAuthorized() bool {
	return pc.CheckMicrophonePermission() == PermissionAuthorized
}

// IsAccessibilityAuthorized returns whether accessibility permission is granted
func (pc *PermissionChecker) IsAccessibilityAuthorized() bool {
	return pc.CheckAccessibilityPermission() == PermissionAuthorized
}

// RequestMicrophonePermission opens system settings for microphone permission
func (pc *PermissionChecker) RequestMicrophonePermission() error {
	return pc.probe.openSettings(Microphone)
}

// RequestAccessibilityPermission opens system settings for accessibility permission
func (pc *PermissionChecker) RequestAccessibilityPermission() error {
	return pc.probe.openSettings(Accessibility)
}

// PermissionStatus string representation
func (ps PermissionStatus) String() string {
	switch ps {
	case PermissionNotDetermined:
		return "NotDetermined"
	case PermissionRestricted:
		return "Restricted"
	case PermissionDenied:
		return "Denied"
	case PermissionAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// CheckAllPermissions checks both microphone and accessibility permissions
func (pc *PermissionChecker) CheckAllPermissions() map[string]bool {
	return map[string]bool{
		Microphone:    pc.IsMicrophoneAuthorized(),
		Accessibility: pc.IsAccessibilityAuthorized(),
	}
}

// AreAllPermissionsGranted returns whether all required permissions are granted
func (pc *PermissionChecker) AreAllPermissionsGranted() bool {
	for _, granted := range pc.CheckAllPermissions() {
		if !granted {
			return false
		}
	}
	return true
}

// GetPermissionStatusMessage returns a human-readable message for a permission status
func GetPermissionStatusMessage(status PermissionStatus) string {
	switch status {
	case PermissionNotDetermined:
		return "Permission not yet determined"
	case PermissionRestricted:
		return "Permission restricted by parental controls"
	case PermissionDenied:
		return "Permission denied"
	case PermissionAuthorized:
		return "Permission authorized"
	default:
		return "Unknown permission status"
	}
}

// GetMissingPermissionsMessage lists the missing permissions in the UI language.
// It is empty when everything is granted.
func (pc *PermissionChecker) GetMissingPermissionsMessage() string {
	var missing []string

	if !pc.IsMicrophoneAuthorized() {
		missing = append(missing, i18n.T("permission.microphone"))
	}
	if !pc.IsAccessibilityAuthorized() {
		missing = append(missing, i18n.T("permission.accessibility"))
	}

	if len(missing) == 0 {
		return ""
	}

	var b strings.Builder
	for _, perm := range missing {
		b.WriteString("  • " + perm + ": " + i18n.T("permission.denied") + "\n")
	}
	return b.String()
}
