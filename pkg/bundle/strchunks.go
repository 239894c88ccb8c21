package bundle

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var utf16beEncoding = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()

// isASCII reports whether every rune in s fits in one byte.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// hasSurrogatePair reports whether s contains a rune outside the Basic
// Multilingual Plane, which would require a UTF-16 surrogate pair to
// encode. The wire format's string chunks carry a flat code-unit count and
// cannot represent those.
func hasSurrogatePair(s string) bool {
	for _, r := range s {
		r1, _ := utf16.EncodeRune(r)
		if r1 != utf8.RuneError {
			return true
		}
	}
	return false
}

// encodeStringPayload builds a string chunk payload: [ref:u16][count:u16]
// [bytes]. ASCII content is stored one byte per character; everything else
// is transcoded to big-endian UTF-16 via golang.org/x/text.
func encodeStringPayload(r ref, s string) ([]byte, bool, error) {
	if isASCII(s) {
		var p payloadWriter
		p.ref(r).u16(uint16(len(s))).raw([]byte(s))
		return p.bytes(), true, nil
	}
	if hasSurrogatePair(s) {
		return nil, false, fmt.Errorf("string requires a surrogate pair to encode: %q", s)
	}
	encoded, err := utf16beEncoding.String(s)
	if err != nil {
		return nil, false, fmt.Errorf("utf16be transcode failed: %w", err)
	}
	charCount := len(encoded) / 2
	var p payloadWriter
	p.ref(r).u16(uint16(charCount)).raw([]byte(encoded))
	return p.bytes(), false, nil
}

// homeRelativeFullPayload encodes a home-relative path key the same way
// encodeStringPayload does: ASCII one byte per character, anything else
// transcoded to big-endian UTF-16. Unlike plain and home-rewritten strings,
// a home-relative entry always uses the single ChunkPathHomeRelative chunk
// kind regardless of which encoding its payload ended up using.
func homeRelativeFullPayload(r ref, s string) ([]byte, error) {
	payload, _, err := encodeStringPayload(r, s)
	return payload, err
}
