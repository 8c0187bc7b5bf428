//go:build darwin

package hotkey

import "golang.design/x/hotkey"

// Platform modifiers behind the alt and cmd settings
const (
	ModAlt = hotkey.ModOption
	ModCmd = hotkey.ModCmd
)
