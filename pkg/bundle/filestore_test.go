package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStripTrailingComment(t *testing.T) {
	cases := map[string]string{
		`foo() // bar`:       `foo()`,
		`say("a//b")`:        `say("a//b")`,
		`plain line`:         `plain line`,
		`x() //`:             `x()`,
		`"//inside" // real`: `"//inside"`,
	}
	for in, want := range cases {
		if got := stripTrailingComment(in); got != want {
			t.Errorf("stripTrailingComment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportRewritePreservesLineCount(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "lib.src")
	if err := os.WriteFile(libPath, []byte("print(\"lib\")\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mainPath := filepath.Join(dir, "main.src")
	mainSrc := "import_code(\"./lib.src\")\n\nprint(\"main\")\n"
	if err := os.WriteFile(mainPath, []byte(mainSrc), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStore()
	sf, err := fs.AddLocalSourceFile("~/main.src", dir, "main.src")
	if err != nil {
		t.Fatal(err)
	}
	resolved := fs.Resolve()
	if len(fs.Problems()) > 0 {
		t.Fatalf("unexpected problems: %v", fs.Problems())
	}

	wantLines := len(strings.Split(mainSrc, "\n"))
	gotLines := len(strings.Split(sf.Contents, "\n"))
	if gotLines != wantLines {
		t.Fatalf("line count changed: got %d want %d", gotLines, wantLines)
	}
	if !sf.IsHomeRewritten {
		t.Fatalf("referrer must be marked home-rewritten after a rewritten import")
	}

	foundLib := false
	for _, rf := range resolved {
		if rf.RefID != sf.RefID && strings.Contains(rf.GamePath, "lib.src") {
			foundLib = true
		}
	}
	if !foundLib {
		t.Fatalf("expected the imported lib.src to be resolved as its own file, got %+v", resolved)
	}
}

func TestAddLocalSourceFileDeduplicatesByAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.src")
	os.WriteFile(p, []byte("x\n"), 0o644)

	fs := NewFileStore()
	sf1, _ := fs.AddLocalSourceFile("", dir, "a.src")
	sf2, _ := fs.AddLocalSourceFile("", dir, "./a.src")
	if sf1.RefID != sf2.RefID {
		t.Fatalf("expected the same StoredFile for equivalent paths")
	}
}

func TestSourceMissingIsRecorded(t *testing.T) {
	fs := NewFileStore()
	_, err := fs.AddLocalSourceFile("", t.TempDir(), "does-not-exist.src")
	if err == nil {
		t.Fatalf("expected an error for a missing local file")
	}
	if len(fs.Problems()) != 1 || fs.Problems()[0].Kind != SourceMissing {
		t.Fatalf("expected one SourceMissing problem, got %v", fs.Problems())
	}
}
