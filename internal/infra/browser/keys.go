package browser

import "strings"

// Modifier is a keyboard modifier bit.
type Modifier int

const (
	ModifierAlt Modifier = 1 << iota
	ModifierCtrl
	ModifierMeta
	ModifierShift
)

// KeyCombo is a parsed key description such as "Control+Shift+a".
type KeyCombo struct {
	Key       string
	Modifiers Modifier
}

var modifierNames = map[string]Modifier{
	"alt":     ModifierAlt,
	"option":  ModifierAlt,
	"control": ModifierCtrl,
	"ctrl":    ModifierCtrl,
	"meta":    ModifierMeta,
	"command": ModifierMeta,
	"cmd":     ModifierMeta,
	"shift":   ModifierShift,
}

// ParseKey splits a "+"-joined key description into modifiers and the final
// key. A lone "+" is the plus key.
func ParseKey(desc string) KeyCombo {
	if desc == "+" {
		return KeyCombo{Key: "+"}
	}
	parts := strings.Split(desc, "+")
	// "Control++" ends with an empty part followed by the plus key.
	if strings.HasSuffix(desc, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}
	var combo KeyCombo
	for i, part := range parts {
		if i == len(parts)-1 {
			combo.Key = part
			break
		}
		if mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(part))]; ok {
			combo.Modifiers |= mod
		}
	}
	return combo
}
