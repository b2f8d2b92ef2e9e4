package xbps

import "strings"

// StripANSI removes carriage returns and CSI escape sequences
// (ESC '[' ... final letter) from captured process output.
func StripANSI(text string) string {
	if !strings.ContainsAny(text, "\x1b\r") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\r':
		case c == 0x1b:
			if i+1 < len(text) && text[i+1] == '[' {
				i += 2
				for i < len(text) && !isASCIILetter(text[i]) {
					i++
				}
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
