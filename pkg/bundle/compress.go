package bundle

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

const (
	maxDictEntries  = 4095 // index 4095 is reserved for the end-of-stream sentinel
	minSubstringLen = 2
	maxSubstringLen = 15
)

type dictEntry struct {
	bytes string
	freq  int
}

// Compress wraps already-assembled chunk bytes in the custom nybble/
// dictionary compressor: a bounded substring dictionary plus a 12-bit
// packed codeword body, per the phases below.
func Compress(input []byte) ([]byte, error) {
	dict, byIndex := buildDictionary(input)
	codes := encodeGreedy(input, byIndex)

	_, compactDict, remap := compactDictionary(dict, codes)
	for i, c := range codes {
		codes[i] = remap[c]
	}

	w := newChunkWriter()
	if err := writeHeaderChunk(w, VersionCompressed); err != nil {
		return nil, err
	}

	header := encodeDictionaryHeader(compactDict)
	body, err := encodeCodewordBody(codes, len(compactDict))
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	payload.Write(header)
	payload.Write(body)

	// The dictionary header and packed body make up the remainder of the
	// artifact; they are not wrapped in a further chunk frame, since the
	// decoder walks them directly after the version-2 header chunk.
	out := w.Bytes()
	out = append(out, payload.Bytes()...)
	return out, nil
}

// buildDictionary runs Phase A: count every substring of length 2..15 and
// every distinct single byte, then keep the top (4095 - distinctBytes)
// multi-byte substrings by frequency plus all distinct bytes, sorted by
// ascending frequency.
func buildDictionary(input []byte) ([]dictEntry, map[string]int) {
	counts := make(map[string]int)
	byteSeen := make(map[byte]bool)

	for i := range input {
		byteSeen[input[i]] = true
		maxLen := maxSubstringLen
		if i+maxLen > len(input) {
			maxLen = len(input) - i
		}
		for l := minSubstringLen; l <= maxLen; l++ {
			counts[string(input[i:i+l])]++
		}
	}

	distinct := len(byteSeen)
	budget := maxDictEntries - distinct
	if budget < 0 {
		budget = 0
	}

	multi := make([]dictEntry, 0, len(counts))
	for s, f := range counts {
		multi = append(multi, dictEntry{bytes: s, freq: f})
	}
	sort.Slice(multi, func(i, j int) bool {
		if multi[i].freq != multi[j].freq {
			return multi[i].freq > multi[j].freq
		}
		return multi[i].bytes < multi[j].bytes
	})
	if len(multi) > budget {
		multi = multi[:budget]
	}

	single := make([]dictEntry, 0, distinct)
	for b := range byteSeen {
		s := string([]byte{b})
		single = append(single, dictEntry{bytes: s, freq: counts[s]})
	}
	sort.Slice(single, func(i, j int) bool { return single[i].bytes < single[j].bytes })

	all := append(multi, single...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].freq < all[j].freq })

	byIndex := make(map[string]int, len(all))
	for i, e := range all {
		byIndex[e.bytes] = i
	}
	return all, byIndex
}

// encodeGreedy runs Phase B: at each position, take the longest dictionary
// match (length 15 down to 1); a length-1 match always exists because
// every distinct byte is in the dictionary.
func encodeGreedy(input []byte, byIndex map[string]int) []int {
	var codes []int
	pos := 0
	for pos < len(input) {
		maxLen := maxSubstringLen
		if pos+maxLen > len(input) {
			maxLen = len(input) - pos
		}
		matched := false
		for l := maxLen; l >= 1; l-- {
			s := string(input[pos : pos+l])
			if idx, ok := byIndex[s]; ok {
				codes = append(codes, idx)
				pos += l
				matched = true
				break
			}
		}
		if !matched {
			// unreachable: every single byte is guaranteed present
			codes = append(codes, byIndex[string(input[pos:pos+1])])
			pos++
		}
	}
	return codes
}

// compactDictionary runs Phase C: discard dictionary entries the encoded
// stream never referenced, renumber survivors ascending by stored length,
// and return the old->new index map.
func compactDictionary(dict []dictEntry, codes []int) (*roaring.Bitmap, []dictEntry, map[int]int) {
	used := roaring.New()
	for _, c := range codes {
		used.Add(uint32(c))
	}

	survivors := make([]dictEntry, 0, used.GetCardinality())
	it := used.Iterator()
	for it.HasNext() {
		survivors = append(survivors, dict[it.Next()])
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return len(survivors[i].bytes) < len(survivors[j].bytes)
	})

	newIndex := make(map[string]int, len(survivors))
	for i, e := range survivors {
		newIndex[e.bytes] = i
	}

	remap := make(map[int]int, len(dict))
	it2 := used.Iterator()
	for it2.HasNext() {
		old := it2.Next()
		remap[int(old)] = newIndex[dict[old].bytes]
	}

	return used, survivors, remap
}

// encodeDictionaryHeader runs Phase D: group consecutive same-length
// entries (max 15 per group) as [(len-1)<<4 | count][raw bytes...],
// terminated by a zero byte.
func encodeDictionaryHeader(dict []dictEntry) []byte {
	var buf bytes.Buffer
	i := 0
	for i < len(dict) {
		l := len(dict[i].bytes)
		j := i
		for j < len(dict) && len(dict[j].bytes) == l && (j-i) < 15 {
			j++
		}
		count := j - i
		buf.WriteByte(byte(((l - 1) << 4) | count))
		for k := i; k < j; k++ {
			buf.WriteString(dict[k].bytes)
		}
		i = j
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

// encodeCodewordBody runs Phase E: pack each code as a big-endian 12-bit
// codeword, two codewords per three bytes, followed by the sentinel
// (dictSize) and zero-padding if the final codeword lands on an odd count.
func encodeCodewordBody(codes []int, dictSize int) ([]byte, error) {
	all := append(append([]int{}, codes...), dictSize)
	var buf bytes.Buffer
	for i := 0; i < len(all); i += 2 {
		a := all[i]
		if a < 0 || a > 0xFFF {
			return nil, fmt.Errorf("bundle: codeword %d out of 12-bit range", a)
		}
		if i+1 < len(all) {
			b := all[i+1]
			if b < 0 || b > 0xFFF {
				return nil, fmt.Errorf("bundle: codeword %d out of 12-bit range", b)
			}
			buf.WriteByte(byte(a >> 4))
			buf.WriteByte(byte((a&0xF)<<4) | byte(b>>8))
			buf.WriteByte(byte(b & 0xFF))
		} else {
			buf.WriteByte(byte(a >> 4))
			buf.WriteByte(byte((a & 0xF) << 4))
		}
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress, used by round-trip tests to confirm the
// property in the testable-properties list: decompressing a compressed
// artifact reproduces the original uncompressed bytes exactly.
func Decompress(input []byte) ([]byte, error) {
	if len(input) < 4 || ChunkKind(input[0]) != ChunkHeader {
		return nil, fmt.Errorf("bundle: missing header chunk")
	}
	hdrLen := int(input[1])<<8 | int(input[2])
	body := input[3+hdrLen:]

	dict, n, err := decodeDictionaryHeader(body)
	if err != nil {
		return nil, err
	}
	body = body[n:]

	codes, err := decodeCodewordBody(body)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	sentinel := len(dict)
	for _, c := range codes {
		if c == sentinel {
			break
		}
		if c < 0 || c >= len(dict) {
			return nil, fmt.Errorf("bundle: codeword %d out of range for dictionary of size %d", c, len(dict))
		}
		out.WriteString(dict[c].bytes)
	}
	return out.Bytes(), nil
}

func decodeDictionaryHeader(b []byte) ([]dictEntry, int, error) {
	var dict []dictEntry
	i := 0
	for {
		if i >= len(b) {
			return nil, 0, fmt.Errorf("bundle: truncated dictionary header")
		}
		tag := b[i]
		i++
		if tag == 0 {
			break
		}
		l := int(tag>>4) + 1
		count := int(tag & 0xF)
		for k := 0; k < count; k++ {
			if i+l > len(b) {
				return nil, 0, fmt.Errorf("bundle: truncated dictionary entry")
			}
			dict = append(dict, dictEntry{bytes: string(b[i : i+l])})
			i += l
		}
	}
	return dict, i, nil
}

func decodeCodewordBody(b []byte) ([]int, error) {
	var codes []int
	i := 0
	for i+3 <= len(b) {
		a := int(b[i])<<4 | int(b[i+1])>>4
		bb := int(b[i+1]&0xF)<<8 | int(b[i+2])
		codes = append(codes, a, bb)
		i += 3
	}
	if i+2 == len(b) {
		a := int(b[i])<<4 | int(b[i+1])>>4
		codes = append(codes, a)
	}
	return codes, nil
}
