// Package manifest dispatches a parsed manifest document onto a
// bundle.Assembler's typed operations. The manifest itself is read as
// generic JSON (no fixed schema struct), matching how the bundler core only
// ever sees an already-parsed value tree.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/oj"

	"github.com/goopsie/ghbundle/pkg/bundle"
)

// LoadFile reads path, parses it as a top-level JSON array of blocks, and
// dispatches every block onto asm. "bundle" blocks are followed
// recursively, relative to the including file's directory; cycles are
// broken by tracking absolute paths already included.
//
// A malformed block (wrong field type, unknown type, and so on) is recorded
// as a bundle.ManifestInvalid problem on asm rather than returned, so one
// bad block among many does not stop the rest from being processed -
// matching the accumulate-and-continue policy FileStore already applies to
// SourceMissing and ImportUnresolved. LoadFile's own return error is
// reserved for the root manifest file itself being unreadable or not valid
// JSON, since there are no blocks to fall back to in that case.
func LoadFile(path string, asm *bundle.Assembler) error {
	seen := make(map[string]bool)
	return loadFile(path, asm, seen, true)
}

// loadFile is also used recursively for "bundle" inclusions, in which case
// fatal is false: a nested manifest that cannot be read or parsed is
// recorded as a problem on asm instead of aborting the including manifest's
// remaining blocks.
func loadFile(path string, asm *bundle.Assembler, seen map[string]bool, fatal bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return recordOrReturn(asm, path, fmt.Errorf("resolve %s: %w", path, err), fatal)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	b, err := os.ReadFile(abs)
	if err != nil {
		return recordOrReturn(asm, path, fmt.Errorf("read %s: %w", path, err), fatal)
	}

	value, err := oj.Parse(b)
	if err != nil {
		return recordOrReturn(asm, path, fmt.Errorf("parse %s: %w", path, err), fatal)
	}

	blocks, ok := value.([]any)
	if !ok {
		return recordOrReturn(asm, path, fmt.Errorf("%s: top level must be an array of blocks", path), fatal)
	}

	dir := filepath.Dir(abs)
	d := &dispatcher{asm: asm, dir: dir, seen: seen}
	for i, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			asm.RecordProblem(bundle.ManifestInvalid, fmt.Sprintf("%s[%d]", path, i), fmt.Errorf("block is not an object"))
			continue
		}
		if err := d.dispatch(block); err != nil {
			asm.RecordProblem(bundle.ManifestInvalid, fmt.Sprintf("%s[%d] (type=%v)", path, i, block["type"]), err)
		}
	}
	return nil
}

// recordOrReturn records err on asm and continues (returns nil) when fatal
// is false, or returns err directly when fatal is true.
func recordOrReturn(asm *bundle.Assembler, path string, err error, fatal bool) error {
	if fatal {
		return err
	}
	asm.RecordProblem(bundle.ManifestInvalid, path, err)
	return nil
}
