// Package normalize turns raw snapshot uploads into the ASCII text the store persists.
package normalize

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ASCII decodes raw as UTF-8, substituting U+FFFD for ill-formed sequences,
// and rewrites every code point above 0x7F as a decimal numeric character
// reference. U+1F608 becomes "&#128520;".
func ASCII(raw []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
	}

	var b strings.Builder
	b.Grow(len(decoded))
	for len(decoded) > 0 {
		r, size := utf8.DecodeRune(decoded)
		decoded = decoded[size:]
		if r < utf8.RuneSelf {
			b.WriteByte(byte(r))
			continue
		}
		b.WriteString("&#")
		b.WriteString(strconv.Itoa(int(r)))
		b.WriteByte(';')
	}
	return b.String()
}
