package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string
	goos    string
	run     func(name string, args ...string) error

	mu      sync.RWMutex
	enabled bool
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(appName string) *NotificationManager {
	return &NotificationManager{
		appName: appName,
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
		enabled: true,
	}
}

// SetEnabled turns delivery on or off. Disabled sends are no-ops.
func (nm *NotificationManager) SetEnabled(enabled bool) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.enabled = enabled
}

// Enabled reports whether notifications are delivered
func (nm *NotificationManager) Enabled() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.enabled
}

// command returns the platform notifier invocation for n
func (nm *NotificationManager) command(n *Notification) (string, []string, error) {
	switch nm.goos {
	case "darwin":
		script := fmt.Sprintf(
			`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message),
			escapeAppleScript(n.Title),
		)
		return "osascript", []string{"-e", script}, nil
	case "linux":
		urgency := "normal"
		if n.Type == TypeError {
			urgency = "critical"
		}
		return "notify-send", []string{"--app-name=" + nm.appName, "--urgency=" + urgency, n.Title, n.Message}, nil
	default:
		return "", nil, fmt.Errorf("notifications are not supported on %s", nm.goos)
	}
}

// Send sends a notification via the platform notification center
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	if !nm.Enabled() {
		return nil
	}

	name, args, err := nm.command(notification)
	if err != nil {
		return err
	}
	if err := nm.run(name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeInfo})
}

// SendWarning sends a warning notification
func (nm *NotificationManager) SendWarning(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeWarning})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeError})
}

// SendSuccess sends a success notification
func (nm *NotificationManager) SendSuccess(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeSuccess})
}

// SilenceHint tells the user the microphone heard silence and the hotkey ends the turn
func (nm *NotificationManager) SilenceHint() error {
	return nm.SendInfo(nm.appName, i18n.T("notification.silence_hint"))
}

// ResponseDegraded reports a turn whose response came back incomplete
func (nm *NotificationManager) ResponseDegraded() error {
	return nm.SendWarning(nm.appName, i18n.T("notification.degraded"))
}

// ConnectionLost reports a transport failure with the retry countdown
func (nm *NotificationManager) ConnectionLost(delay time.Duration, remaining int) error {
	message := i18n.TF("notification.connection_lost", map[string]string{
		"seconds":   strconv.Itoa(int(delay.Seconds())),
		"remaining": strconv.Itoa(remaining),
	})
	return nm.SendWarning(nm.appName, message)
}

// RetriesExhausted reports that the controller is shutting down
func (nm *NotificationManager) RetriesExhausted() error {
	return nm.SendError(nm.appName, i18n.T("notification.retries_exhausted"))
}

// ResponseCopied confirms the response text is on the clipboard
func (nm *NotificationManager) ResponseCopied() error {
	return nm.SendSuccess(nm.appName, i18n.T("notification.response_copied"))
}

// MicrophonePermissionDenied sends a notification that microphone permission is denied
func (nm *NotificationManager) MicrophonePermissionDenied() error {
	return nm.SendError(nm.appName, i18n.T("error.mic_permission_denied"))
}

// DeviceNotFound sends a notification that an audio device is missing
func (nm *NotificationManager) DeviceNotFound(device string) error {
	message := i18n.T("error.device_not_found")
	if device != "" {
		message += ": " + device
	}
	return nm.SendError(nm.appName, message)
}

// escapeAppleScript escapes special characters for AppleScript
func escapeAppleScript(s string) string {
	// Escape backslashes first to avoid double-escaping
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}
