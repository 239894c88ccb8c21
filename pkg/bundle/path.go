package bundle

import (
	"strconv"
	"strings"
)

// normalizePath replaces backslashes with forward slashes and collapses
// repeated slashes, mirroring ghtar.py's FileManager._normalize.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// splitPath normalizes p then splits at the last "/" into (parent, leaf).
// A path with no "/" returns (p, "").
func splitPath(p string) (parent, leaf string) {
	p = normalizePath(p)
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}

func isSourceChar(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '/':
		return true
	}
	return false
}

// sanitizeSourceName rewrites p so it contains only characters a source
// file path may legally use. A leading '~' is preserved literally; every
// other disallowed byte becomes 'X'. A path that needed any replacement is
// relocated to "~/.tmp/src/dirty<Xs>[<n>]/<tail>"; existing receives the set
// of synthetic paths already assigned, and n is the smallest value whose
// path is not in it. A path with no replacement is returned unchanged.
func sanitizeSourceName(p string, existing map[string]bool) string {
	rest := p
	hadTilde := strings.HasPrefix(p, "~")
	if hadTilde {
		rest = p[1:]
	}

	var out strings.Builder
	dirty := 0
	for i := 0; i < len(rest); i++ {
		b := rest[i]
		if isSourceChar(b) {
			out.WriteByte(b)
		} else {
			out.WriteByte('X')
			dirty++
		}
	}
	cleaned := out.String()
	if hadTilde {
		cleaned = "~" + cleaned
	}

	if dirty == 0 {
		return cleaned
	}

	xs := strings.Repeat("X", dirty)
	tail := cleaned
	if hadTilde {
		tail = cleaned[1:]
	}
	tail = strings.TrimPrefix(tail, "/")
	for n := 0; ; n++ {
		candidate := "~/.tmp/src/dirty" + xs + "[" + strconv.Itoa(n) + "]/" + tail
		if !existing[candidate] {
			return candidate
		}
	}
}
