package bundle

import "strings"

// stringKind records which of the three pools a pool entry belongs to, so
// the assembler knows which chunk kind to emit for it.
type stringKind int

const (
	kindPlain stringKind = iota
	kindHomeRewritten
	kindHomeRelative
)

type poolEntry struct {
	kind stringKind
	text string
}

// stringPool is the three-table interner described in ghtar.py's Blocks
// class: plain strings, home-rewritten strings (containing the <[HOME]>
// placeholder), and home-relative paths, all sharing one index space.
type stringPool struct {
	plain         map[string]ref
	homeRewritten map[string]ref
	homeRelative  map[string]ref
	order         []poolEntry
	next          ref
}

func newStringPool() *stringPool {
	return &stringPool{
		plain:         make(map[string]ref),
		homeRewritten: make(map[string]ref),
		homeRelative:  make(map[string]ref),
	}
}

func (sp *stringPool) alloc(kind stringKind, text string) ref {
	r := sp.next
	sp.next++
	sp.order = append(sp.order, poolEntry{kind: kind, text: text})
	return r
}

// internString stores s in the plain pool, deduplicating by exact value.
func (sp *stringPool) internString(s string) ref {
	if r, ok := sp.plain[s]; ok {
		return r
	}
	r := sp.alloc(kindPlain, s)
	sp.plain[s] = r
	return r
}

// internHomeRewritten stores s (already containing the <[HOME]> token, if
// any) in the home-rewritten pool.
func (sp *stringPool) internHomeRewritten(s string) ref {
	if r, ok := sp.homeRewritten[s]; ok {
		return r
	}
	r := sp.alloc(kindHomeRewritten, s)
	sp.homeRewritten[s] = r
	return r
}

// internPath routes a virtual path to the correct pool per ghtar.py's
// Blocks._add_path: "~" and "~/x" land in the home-relative pool keyed
// without their "~/" prefix; everything else is trailing-slash-trimmed and
// stored as a plain string.
func (sp *stringPool) internPath(p string) ref {
	switch {
	case p == "~":
		return sp.internHomeRelative("")
	case strings.HasPrefix(p, "~/"):
		return sp.internHomeRelative(strings.TrimPrefix(p, "~/"))
	}
	trimmed := p
	if trimmed != "/" && trimmed != "" {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	return sp.internString(trimmed)
}

func (sp *stringPool) internHomeRelative(key string) ref {
	if r, ok := sp.homeRelative[key]; ok {
		return r
	}
	r := sp.alloc(kindHomeRelative, key)
	sp.homeRelative[key] = r
	return r
}
