package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goopsie/ghbundle/pkg/bundle"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFileFolderAndFile(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, "manifest.json", `[
		{"type": "folder", "path": "~/s"},
		{"type": "file", "path": "~/s/a.txt", "contents": "hi"}
	]`)

	asm := bundle.NewAssembler()
	require.NoError(t, LoadFile(manifestPath, asm))

	_, err := asm.Assemble()
	require.NoError(t, err)
	require.Empty(t, asm.Problems())
}

func TestLoadFileUnknownBlockType(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, "manifest.json", `[
		{"type": "not-a-real-type"},
		{"type": "file", "path": "~/s/a.txt", "contents": "hi"},
		{"type": "file", "path": "~/s/a.txt", "contents": "bye"}
	]`)

	asm := bundle.NewAssembler()
	require.NoError(t, LoadFile(manifestPath, asm))

	problems := asm.Problems()
	require.Len(t, problems, 2)
	// Problems lists file-store problems before the assembler's own, so the
	// duplicate-target problem comes first even though it was recorded last.
	// It only appears if the second block (the first "file" block) was
	// actually processed despite the first block's error, proving the loop
	// kept going instead of aborting.
	require.Equal(t, bundle.DuplicateTarget, problems[0].Kind)
	require.Equal(t, bundle.ManifestInvalid, problems[1].Kind)
}

func TestLoadFileBundleInclusionIsRelative(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeManifest(t, sub, "inner.json", `[{"type": "folder", "path": "~/inner"}]`)
	root := writeManifest(t, dir, "manifest.json", `[{"type": "bundle", "local": "sub/inner.json"}]`)

	asm := bundle.NewAssembler()
	require.NoError(t, LoadFile(root, asm))

	_, err := asm.Assemble()
	require.NoError(t, err)
}

func TestLoadFileSourceWithImport(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "lib.src"), []byte("print(\"lib\")\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "main.src"), []byte("import_code(\"./lib.src\")\n"), 0o644)
	manifestPath := writeManifest(t, dir, "manifest.json", `[
		{"type": "source", "path": "~/main.src", "local": "main.src"}
	]`)

	asm := bundle.NewAssembler()
	require.NoError(t, LoadFile(manifestPath, asm))

	_, err := asm.Assemble()
	require.NoError(t, err)
	require.Empty(t, asm.Problems())
}

func TestLoadFileCompileSugarBlock(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "m.src"), []byte("print(\"m\")\n"), 0o644)
	manifestPath := writeManifest(t, dir, "manifest.json", `[
		{"type": "compile", "local": "m.src", "target": "~/bin/m"}
	]`)

	asm := bundle.NewAssembler()
	require.NoError(t, LoadFile(manifestPath, asm))

	_, err := asm.Assemble()
	require.NoError(t, err)
	require.Empty(t, asm.Problems())
}
