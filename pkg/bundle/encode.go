package bundle

import (
	"strings"

	"github.com/eknkc/basex"
)

// rfc1924Alphabet is the 85-character alphabet from RFC 1924, used for the
// artifact's textual output encoding.
const rfc1924Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

const multilineWidth = 70

var base85Encoding = mustEncoding()

func mustEncoding() *basex.Encoding {
	enc, err := basex.NewEncoding(rfc1924Alphabet)
	if err != nil {
		panic("bundle: invalid base85 alphabet: " + err.Error())
	}
	return enc
}

// EncodeOutput base85-encodes data and, when multiline is set, folds the
// result every 70 characters.
func EncodeOutput(data []byte, multiline bool) string {
	encoded := base85Encoding.Encode(data)
	if !multiline {
		return encoded
	}
	var b strings.Builder
	for i := 0; i < len(encoded); i += multilineWidth {
		end := i + multilineWidth
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		if end < len(encoded) {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// DecodeOutput reverses EncodeOutput, tolerating embedded line breaks.
func DecodeOutput(text string) ([]byte, error) {
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.ReplaceAll(text, "\r", "")
	return base85Encoding.Decode(text)
}
