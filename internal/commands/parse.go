// Package commands answers chat commands from the cached snapshot.
package commands

import "strings"

// Prefixes accepted in front of a command name.
const Prefixes = "!./"

// Parse splits "!count", ".t", "/info@dayzbot extra" into a lowercase command
// name and its arguments. A command addressed to a different bot is rejected.
// botUsername may be empty when the backend does not know it.
func Parse(text, botUsername string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || !strings.ContainsRune(Prefixes, rune(text[0])) {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	name = fields[0]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if botUsername != "" && !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
			return "", nil, false
		}
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
