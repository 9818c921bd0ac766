package bot

import "strings"

// Gate is the static allow-list applied to room-invite senders and to
// privileged commands. It is built once at startup from configuration.
type Gate struct {
	admins []string
}

// NewGate parses a comma/space-separated allow-list of user ids. An
// absent (empty) list means open mode: everyone passes.
func NewGate(list string) Gate {
	return Gate{admins: strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' '
	})}
}

// IsAdmin reports whether sender passes the gate.
func (g Gate) IsAdmin(sender string) bool {
	if len(g.admins) == 0 {
		return true
	}
	for _, admin := range g.admins {
		if admin == sender {
			return true
		}
	}
	return false
}
