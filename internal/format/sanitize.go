package format

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	invalidFilenameChars = "<>:\"/\\|?*"
	maxNameBytes         = 240
)

var errEmptyName = errors.New("name is empty after sanitization")

// Sanitize makes name safe as a single path element on common filesystems.
// Illegal and control characters become a space, whitespace runs collapse,
// trailing dots and spaces are dropped and the result is NFC normalized and
// capped in length.
func Sanitize(name string) (string, error) {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))

	lastSpace := false
	for _, r := range name {
		if r < 32 || r == 127 || strings.ContainsRune(invalidFilenameChars, r) || r == ' ' || r == '\t' || r == utf8.RuneError {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	result := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	result = truncate(result, maxNameBytes)
	if result == "" {
		return "", errEmptyName
	}
	return result, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], ". ")
}
