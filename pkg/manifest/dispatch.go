package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/goopsie/ghbundle/pkg/bundle"
)

// dispatcher holds the context needed to resolve one manifest file's
// relative fields: its own directory (for local-file and glob resolution)
// and the assembler every block feeds into.
type dispatcher struct {
	asm  *bundle.Assembler
	dir  string
	seen map[string]bool
}

// dispatch routes one manifest block to the assembler's matching operation,
// mirroring the switch-on-type-string shape sketched (but left
// disconnected) in the original tool's manifest converter dispatch.
func (d *dispatcher) dispatch(block map[string]any) error {
	typ, _ := block["type"].(string)
	switch typ {
	case "folder":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		d.asm.AddFolder(path)

	case "file":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		if contents, ok := block["contents"].(string); ok {
			d.asm.AddContentsFile(path, contents)
		} else if local, ok := block["local"].(string); ok {
			d.asm.AddLocalTextFile(path, d.dir, local)
		} else {
			return fmt.Errorf("file block %q needs contents or local", path)
		}

	case "source":
		path, _ := strField(block, "path")
		local, err := strField(block, "local")
		if err != nil {
			return err
		}
		d.asm.AddLocalSourceFile(path, d.dir, local)

	case "test":
		name, err := strField(block, "name")
		if err != nil {
			return err
		}
		return d.dispatchTest(name, block["local"])

	case "build":
		source, err := strField(block, "source")
		if err != nil {
			return err
		}
		target, err := strField(block, "target")
		if err != nil {
			return err
		}
		d.asm.AddBuild(source, target)

	case "compile":
		return d.dispatchCompile(block)

	case "user":
		user, err := strField(block, "user")
		if err != nil {
			return err
		}
		password, _ := strField(block, "password")
		d.asm.AddUser(user, password)

	case "group":
		user, err := strField(block, "user")
		if err != nil {
			return err
		}
		group, err := strField(block, "group")
		if err != nil {
			return err
		}
		d.asm.AddGroup(user, group)

	case "rm-user":
		user, err := strField(block, "user")
		if err != nil {
			return err
		}
		d.asm.AddRemoveUser(user)

	case "rm-group":
		user, err := strField(block, "user")
		if err != nil {
			return err
		}
		group, err := strField(block, "group")
		if err != nil {
			return err
		}
		d.asm.AddRemoveGroup(user, group)

	case "chmod":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		perms, err := strField(block, "permissions")
		if err != nil {
			return err
		}
		d.asm.AddChmod(path, perms, boolField(block, "recursive"))

	case "chown":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		owner, err := ownerField(block)
		if err != nil {
			return err
		}
		d.asm.AddChown(path, owner, boolField(block, "recursive"))

	case "chgroup":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		group, err := strField(block, "group")
		if err != nil {
			return err
		}
		d.asm.AddChgroup(path, group, boolField(block, "recursive"))

	case "exec", "run", "launch":
		cmd, err := strField(block, "cmd")
		if err != nil {
			return err
		}
		argv := append([]string{cmd}, strListField(block, "arguments")...)
		d.asm.AddLaunch(argv)

	case "copy", "cp":
		from, err := strField(block, "from")
		if err != nil {
			return err
		}
		to, err := strField(block, "to")
		if err != nil {
			return err
		}
		d.asm.AddCopy(from, to)

	case "move", "mv", "rename", "ren":
		from, err := strField(block, "from")
		if err != nil {
			return err
		}
		to, err := strField(block, "to")
		if err != nil {
			return err
		}
		d.asm.AddMove(from, to)

	case "delete", "del", "rm":
		path, err := strField(block, "path")
		if err != nil {
			return err
		}
		d.asm.AddDelete(path)

	case "about":
		// metadata only; nothing to assemble.

	case "bundle":
		local, err := strField(block, "local")
		if err != nil {
			return err
		}
		included := filepath.Join(d.dir, local)
		return loadFile(included, d.asm, d.seen, false)

	default:
		return fmt.Errorf("unknown block type %q", typ)
	}
	return nil
}

// dispatchTest resolves a test block's "local" field, which may be a
// single glob pattern or a list of them, against the manifest's directory
// using doublestar so "**" recursive patterns work. Each match produces a
// test named "<name>-<basename-without-extension>".
func (d *dispatcher) dispatchTest(name string, localValue any) error {
	var patterns []string
	switch v := localValue.(type) {
	case string:
		patterns = []string{v}
	case []any:
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return fmt.Errorf("test %q: local list entries must be strings", name)
			}
			patterns = append(patterns, s)
		}
	default:
		return fmt.Errorf("test %q: local must be a string or list of strings", name)
	}

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(d.dir), pattern)
		if err != nil {
			return fmt.Errorf("test %q: glob %q: %w", name, pattern, err)
		}
		if len(matches) == 0 {
			// A pattern with no special characters is a literal path; use
			// it directly so single-file tests don't need real globs.
			if !strings.ContainsAny(pattern, "*?[{") {
				matches = []string{pattern}
			}
		}
		for _, m := range matches {
			base := filepath.Base(m)
			base = strings.TrimSuffix(base, filepath.Ext(base))
			testName := name + "-" + base
			d.asm.AddTestFile(testName, d.dir, m)
		}
	}
	return nil
}

// dispatchCompile implements the "compile" sugar block: install local as a
// source under a synthetic build-source path, optionally emit tests, then
// build from that source to target.
func (d *dispatcher) dispatchCompile(block map[string]any) error {
	local, err := strField(block, "local")
	if err != nil {
		return err
	}
	target, err := strField(block, "target")
	if err != nil {
		return err
	}

	synthetic := "~/.tmp/build.source/" + filepath.Base(local)
	d.asm.AddLocalSourceFile(synthetic, d.dir, local)

	if testsValue, ok := block["local-tests"]; ok {
		name := strings.TrimSuffix(filepath.Base(local), filepath.Ext(local))
		if err := d.dispatchTest(name, testsValue); err != nil {
			return err
		}
	}

	d.asm.AddBuild(synthetic, target)
	return nil
}

func strField(block map[string]any, key string) (string, error) {
	v, ok := block[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return s, nil
}

func boolField(block map[string]any, key string) bool {
	v, _ := block[key].(bool)
	return v
}

func strListField(block map[string]any, key string) []string {
	raw, ok := block[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ownerField reads "owner", falling back to "user" for manifests that spell
// a chown block's target owner that way.
func ownerField(block map[string]any) (string, error) {
	if s, err := strField(block, "owner"); err == nil {
		return s, nil
	}
	return strField(block, "user")
}
