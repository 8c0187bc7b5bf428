package hotkey

import "golang.design/x/hotkey"

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string
	Description string
	Modifiers   []hotkey.Modifier
	Key         hotkey.Key
}

// knownConflicts lists system shortcuts a stop key is likely to collide
// with. A global grab on any of these steals the key from the system or
// from the focused app.
var knownConflicts = []ConflictInfo{
	{
		Name:        "Spotlight",
		Description: "macOS Spotlight search (also Alfred and Raycast defaults)",
		Modifiers:   []hotkey.Modifier{ModCmd},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Input Source",
		Description: "Switch to the previous input source",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Screenshot",
		Description: "macOS screenshot toolbar",
		Modifiers:   []hotkey.Modifier{ModCmd, hotkey.ModShift},
		Key:         hotkey.Key5,
	},
	{
		Name:        "Escape",
		Description: "Cancels dialogs and menus in the focused app",
		Key:         hotkey.KeyEscape,
	},
	{
		Name:        "Force Quit",
		Description: "macOS Force Quit",
		Modifiers:   []hotkey.Modifier{ModCmd, ModAlt},
		Key:         hotkey.KeyEscape,
	},
	{
		Name:        "Start Menu",
		Description: "Windows Start menu",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl},
		Key:         hotkey.KeyEscape,
	},
	{
		Name:        "Task Manager",
		Description: "Windows Task Manager",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift},
		Key:         hotkey.KeyEscape,
	},
}

// CheckConflicts returns the known shortcuts that use exactly this combination
func CheckConflicts(modifiers []hotkey.Modifier, key hotkey.Key) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if known.Key == key && sameModifiers(modifiers, known.Modifiers) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// sameModifiers compares modifier sets, ignoring order and repeats
func sameModifiers(a, b []hotkey.Modifier) bool {
	set := func(mods []hotkey.Modifier) map[hotkey.Modifier]struct{} {
		m := make(map[hotkey.Modifier]struct{}, len(mods))
		for _, mod := range mods {
			m[mod] = struct{}{}
		}
		return m
	}

	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for mod := range sa {
		if _, ok := sb[mod]; !ok {
			return false
		}
	}
	return true
}

// FormatHotkey returns a human-readable string representation of the hotkey
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	result := ""

	for _, mod := range modifiers {
		switch mod {
		case hotkey.ModCtrl:
			result += "⌃"
		case hotkey.ModShift:
			result += "⇧"
		case ModAlt:
			result += "⌥"
		case ModCmd:
			result += "⌘"
		}
	}

	result += keyToString(key)
	return result
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	// Key codes are not unique on every platform
	named := []struct {
		key  hotkey.Key
		name string
	}{
		{hotkey.KeySpace, "Space"},
		{hotkey.KeyEscape, "Esc"},
		{hotkey.KeyReturn, "Return"},
		{hotkey.KeyTab, "Tab"},
		{hotkey.KeyDelete, "Delete"},
	}

	for _, n := range named {
		if n.key == key {
			return n.name
		}
	}

	for i, k := range letterKeys {
		if k == key {
			return string(rune('A' + i))
		}
	}
	for i, k := range digitKeys {
		if k == key {
			return string(rune('0' + i))
		}
	}

	return "Unknown"
}
