//go:build linux

package hotkey

import "golang.design/x/hotkey"

// Platform modifiers behind the alt and cmd settings. On X11 Mod1 is Alt
// and Mod4 is Super.
const (
	ModAlt = hotkey.Mod1
	ModCmd = hotkey.Mod4
)
