package extract

import (
	"unicode/utf8"
)

// extractPlain returns content as a string. Content that is not valid UTF-8
// is decoded as Latin-1.
func extractPlain(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return decodeLatin1(content), nil
}

func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// fixMojibake repairs UTF-8 text that was decoded as Latin-1 and re-encoded,
// as in Facebook exports ("Å\u0082" back to "ł"). Text that does not round-trip
// is returned unchanged.
func fixMojibake(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		b = append(b, byte(r))
	}
	if !utf8.Valid(b) {
		return s
	}
	return string(b)
}
