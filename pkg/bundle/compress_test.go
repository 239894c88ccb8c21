package bundle

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("x"),
		[]byte("hello hello hello world world"),
		bytes.Repeat([]byte("abcabcabcabc"), 50),
		[]byte(""),
	}
	for _, in := range cases {
		compressed, err := Compress(in)
		if err != nil {
			t.Fatalf("Compress(%q): %v", in, err)
		}
		out, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestCompressSingleByteDictionary(t *testing.T) {
	compressed, err := Compress([]byte("z"))
	if err != nil {
		t.Fatal(err)
	}
	dict, n, err := decodeDictionaryHeader(compressed[7:])
	if err != nil {
		t.Fatal(err)
	}
	if len(dict) != 1 || dict[0].bytes != "z" {
		t.Fatalf("expected single-entry dictionary {z}, got %v", dict)
	}
	_ = n
}

func TestBuildDictionaryAllBytesPresent(t *testing.T) {
	input := []byte("The quick brown fox jumps over the lazy dog 0123456789!")
	dict, byIndex := buildDictionary(input)
	for _, b := range input {
		if _, ok := byIndex[string([]byte{b})]; !ok {
			t.Fatalf("byte %q missing from dictionary", b)
		}
	}
	if len(dict) > maxDictEntries {
		t.Fatalf("dictionary exceeds cap: %d", len(dict))
	}
}
