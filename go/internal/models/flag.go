package models

import "strings"

// Flag is the canonical track status consumed by the lighting layer.
type Flag string

const (
	FlagUnknown   Flag = ""
	FlagGreen     Flag = "green"
	FlagYellow    Flag = "yellow"
	FlagRed       Flag = "red"
	FlagSafety    Flag = "safety"
	FlagCheckered Flag = "checkered"
)

// AllFlags lists every canonical flag in display order.
var AllFlags = []Flag{FlagGreen, FlagYellow, FlagRed, FlagSafety, FlagCheckered}

// Valid reports whether f is one of the canonical flags.
func (f Flag) Valid() bool {
	switch f {
	case FlagGreen, FlagYellow, FlagRed, FlagSafety, FlagCheckered:
		return true
	}
	return false
}

func (f Flag) String() string {
	if f == FlagUnknown {
		return "none"
	}
	return string(f)
}

// ParseFlag parses a canonical flag name, case-insensitively.
func ParseFlag(s string) (Flag, bool) {
	f := Flag(strings.ToLower(strings.TrimSpace(s)))
	return f, f.Valid()
}
