package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reMultiDash  = regexp.MustCompile(`-{2,}`)
)

func trim(s string) string {
	return strings.TrimSpace(s)
}

func dashSpaces(s string) string {
	return reWhitespace.ReplaceAllString(s, "-")
}

func collapseDashes(s string) string {
	return reMultiDash.ReplaceAllString(s, "-")
}

// SanitizeRoomID trims a room identifier and turns inner whitespace into
// dashes, so "Room  4B" and "Room-4B" name the same room. Case is kept.
func SanitizeRoomID(input string) string {
	p := Pipeline{
		trim,
		dashSpaces,
		collapseDashes,
	}
	return p.Apply(input)
}

// SanitizeUserID trims an identity forwarded by the gateway.
func SanitizeUserID(input string) string {
	return trim(input)
}

// SanitizeRole lowercases and trims a role name.
func SanitizeRole(input string) string {
	return strings.ToLower(trim(input))
}

// SanitizeMessage collapses whitespace in human-readable notification text.
func SanitizeMessage(input string) string {
	return TrimAndNormalize(input)
}
