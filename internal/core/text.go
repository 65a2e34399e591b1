package core

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims and NFC-composes user input. Some terminals hand over
// Hangul as decomposed jamo, which the server would store verbatim.
func NormalizeText(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
