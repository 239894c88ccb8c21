package bundle

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeOutputRoundTrip(t *testing.T) {
	data := []byte{0, 1, 2, 3, 255, 254, 10, 20, 30}
	encoded := EncodeOutput(data, false)
	decoded, err := DecodeOutput(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("got %v want %v", decoded, data)
	}
}

func TestEncodeOutputMultilineFolding(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 40)
	encoded := EncodeOutput(data, true)
	for _, line := range strings.Split(encoded, "\n") {
		if len(line) > multilineWidth {
			t.Fatalf("line exceeds %d characters: %d", multilineWidth, len(line))
		}
	}
	decoded, err := DecodeOutput(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("round trip through multiline folding failed")
	}
}
