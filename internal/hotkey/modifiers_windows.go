//go:build windows

package hotkey

import "golang.design/x/hotkey"

// Platform modifiers behind the alt and cmd settings
const (
	ModAlt = hotkey.ModAlt
	ModCmd = hotkey.ModWin
)
