//go:build !darwin

package permissions

import "fmt"

// Other platforms have no per-app gate for microphone or global key access.
func platformProbe() probe {
	authorized := func() PermissionStatus { return PermissionAuthorized }
	return probe{
		microphone:    authorized,
		accessibility: authorized,
		openSettings: func(permission string) error {
			return fmt.Errorf("no %s settings pane on this platform", permission)
		},
	}
}
