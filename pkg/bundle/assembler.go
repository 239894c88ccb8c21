package bundle

import (
	"fmt"
	"sort"
	"strings"
)

type execKind int

const (
	execChmod execKind = iota
	execChown
	execChgroup
	execRemoveUser
	execRemoveGroup
	execCopy
	execMove
	execDelete
	execLaunch
	execBuild
	execTest
)

// execEntry is a single deferred action queued by the assembler's public
// ops. Resolution of build/test entries against a file-store ref happens
// when Assemble runs, so the exec queue can be built purely from manifest
// order without knowing final synthetic paths up front.
type execEntry struct {
	kind execKind

	path      string
	value     string
	recursive bool

	from, to string

	argv []string

	buildSourceLiteral string // used when source is not a tracked StoredFile
	buildSourceFile    *StoredFile
	buildTarget        string

	testName string
	testFile *StoredFile
}

type userEntry struct {
	user, password string
}

type groupEntry struct {
	user, group string
}

// Assembler accumulates a manifest's declarative state and exec queue, then
// produces the canonical chunk stream in Assemble.
type Assembler struct {
	pool  *stringPool
	files *FileStore

	folders   []string // normalized full paths, deduped
	folderSet map[string]bool
	users     []userEntry
	groups    []groupEntry
	execQueue []execEntry
	problems  []*Problem
}

func NewAssembler() *Assembler {
	return &Assembler{
		pool:      newStringPool(),
		files:     NewFileStore(),
		folderSet: make(map[string]bool),
	}
}

func (a *Assembler) record(p *Problem) {
	a.problems = append(a.problems, p)
}

// RecordProblem records a problem raised outside the assembler itself, such
// as a manifest block that failed to parse. Assembly continues afterward so
// a single run can surface every problem instead of stopping at the first.
func (a *Assembler) RecordProblem(kind Kind, path string, err error) {
	a.record(newProblem(kind, path, err))
}

// Problems returns every setup-time problem recorded across intake,
// file-store resolution, and assembly.
func (a *Assembler) Problems() []*Problem {
	all := append([]*Problem{}, a.files.Problems()...)
	all = append(all, a.problems...)
	return all
}

// AddFolder recursively ensures path and all its ancestors exist. The root
// ("/", "~", "") is a no-op.
func (a *Assembler) AddFolder(path string) {
	norm := normalizePath(path)
	if norm == "/" || norm == "~" || norm == "" {
		return
	}
	if a.folderSet[norm] {
		return
	}
	parent, _ := splitPath(norm)
	if parent != norm {
		a.AddFolder(parent)
	}
	a.folderSet[norm] = true
	a.folders = append(a.folders, norm)
}

func (a *Assembler) ensureParent(gamePath string) {
	parent, _ := splitPath(gamePath)
	a.AddFolder(parent)
}

// AddContentsFile installs inline text content at gamePath.
func (a *Assembler) AddContentsFile(gamePath, contents string) {
	a.ensureParent(gamePath)
	if _, err := a.files.AddTextContents(gamePath, contents); err != nil {
		return
	}
}

// AddLocalTextFile installs a local file's contents verbatim at gamePath.
// relTo is the directory localPath is resolved against.
func (a *Assembler) AddLocalTextFile(gamePath, relTo, localPath string) {
	a.ensureParent(gamePath)
	a.files.AddLocalTextFile(gamePath, relTo, localPath)
}

// AddLocalSourceFile installs a local file as an import-rewritten source,
// optionally at a requested gamePath. relTo is the directory localPath is
// resolved against.
func (a *Assembler) AddLocalSourceFile(gamePath, relTo, localPath string) *StoredFile {
	if gamePath != "" {
		a.ensureParent(gamePath)
	}
	sf, err := a.files.AddLocalSourceFile(gamePath, relTo, localPath)
	if err != nil {
		return nil
	}
	return sf
}

// AddTestFile stores localPath as a source file and queues a deferred test
// chunk under name. relTo is the directory localPath is resolved against.
func (a *Assembler) AddTestFile(name, relTo, localPath string) {
	sf := a.AddLocalSourceFile("", relTo, localPath)
	if sf == nil {
		return
	}
	a.execQueue = append(a.execQueue, execEntry{kind: execTest, testName: name, testFile: sf})
}

// AddBuild queues a build from source to target. If source matches a
// StoredFile's requested game path, resolution is deferred until Assemble
// so the file's final synthetic path can be used.
func (a *Assembler) AddBuild(source, target string) {
	a.ensureParent(target)
	if sf, ok := a.files.FindByRequestedPath(source); ok {
		a.execQueue = append(a.execQueue, execEntry{kind: execBuild, buildSourceFile: sf, buildTarget: target})
		return
	}
	a.execQueue = append(a.execQueue, execEntry{kind: execBuild, buildSourceLiteral: source, buildTarget: target})
}

func (a *Assembler) AddUser(user, password string) {
	a.users = append(a.users, userEntry{user: user, password: password})
}

func (a *Assembler) AddGroup(user, group string) {
	a.groups = append(a.groups, groupEntry{user: user, group: group})
}

func (a *Assembler) AddRemoveUser(user string) {
	a.execQueue = append(a.execQueue, execEntry{kind: execRemoveUser, value: user})
}

func (a *Assembler) AddRemoveGroup(user, group string) {
	a.execQueue = append(a.execQueue, execEntry{kind: execRemoveGroup, path: user, value: group})
}

func (a *Assembler) AddChmod(path, permissions string, recursive bool) {
	a.execQueue = append(a.execQueue, execEntry{kind: execChmod, path: path, value: permissions, recursive: recursive})
}

// AddChown queues a chown, splitting an "owner:group" value into a chown
// plus a chgroup with the same recursion flag.
func (a *Assembler) AddChown(path, owner string, recursive bool) {
	if idx := strings.IndexByte(owner, ':'); idx >= 0 {
		user, group := owner[:idx], owner[idx+1:]
		a.execQueue = append(a.execQueue, execEntry{kind: execChown, path: path, value: user, recursive: recursive})
		a.execQueue = append(a.execQueue, execEntry{kind: execChgroup, path: path, value: group, recursive: recursive})
		return
	}
	a.execQueue = append(a.execQueue, execEntry{kind: execChown, path: path, value: owner, recursive: recursive})
}

func (a *Assembler) AddChgroup(path, group string, recursive bool) {
	a.execQueue = append(a.execQueue, execEntry{kind: execChgroup, path: path, value: group, recursive: recursive})
}

// AddLaunch queues a launch with argv = [cmd, arguments...]. argv must have
// between 1 and 255 entries.
func (a *Assembler) AddLaunch(argv []string) {
	if len(argv) < 1 || len(argv) > 255 {
		a.record(newProblem(ArgvRange, "", fmt.Errorf("launch argv has %d entries", len(argv))))
		return
	}
	a.execQueue = append(a.execQueue, execEntry{kind: execLaunch, argv: argv})
}

func (a *Assembler) AddCopy(source, target string) {
	a.ensureParent(target)
	a.execQueue = append(a.execQueue, execEntry{kind: execCopy, from: source, to: target})
}

func (a *Assembler) AddMove(source, target string) {
	a.ensureParent(target)
	a.execQueue = append(a.execQueue, execEntry{kind: execMove, from: source, to: target})
}

func (a *Assembler) AddDelete(path string) {
	a.execQueue = append(a.execQueue, execEntry{kind: execDelete, path: path})
}

// Assemble produces the canonical chunk stream, or ErrNoArtifact if any
// problem was recorded during intake or resolution.
func (a *Assembler) Assemble() ([]byte, error) {
	resolved := a.files.Resolve()

	if len(a.Problems()) > 0 {
		return nil, ErrNoArtifact
	}

	// Every resolved file's directory must exist as a folder chunk, which
	// matters most for invented synthetic paths under ~/.tmp that no
	// manifest "folder" block ever named explicitly.
	for _, rf := range resolved {
		a.ensureParent(rf.GamePath)
	}

	w := newChunkWriter()
	if err := writeHeaderChunk(w, VersionUncompressed); err != nil {
		return nil, err
	}

	// Intern every path and content value before emitting any chunk that
	// references it, so references always resolve to an earlier chunk.
	for _, rf := range resolved {
		if rf.IsHomeRewritten {
			a.pool.internHomeRewritten(rf.Contents)
		} else {
			a.pool.internString(rf.Contents)
		}
	}

	sort.Strings(a.folders)
	for _, f := range a.folders {
		parent, leaf := splitPath(f)
		if parent == "" {
			parent = "/"
		}
		a.internFolderRefs(parent, leaf)
	}

	fileRefs := make([]struct {
		dirRef, nameRef, contentsRef ref
	}, len(resolved))
	for i, rf := range resolved {
		dir, name := splitPath(rf.GamePath)
		dirRef := a.pool.internPath(dir)
		nameRef := a.pool.internString(name)
		var contentsRef ref
		if rf.IsHomeRewritten {
			contentsRef = a.pool.internHomeRewritten(rf.Contents)
		} else {
			contentsRef = a.pool.internString(rf.Contents)
		}
		fileRefs[i] = struct{ dirRef, nameRef, contentsRef ref }{dirRef, nameRef, contentsRef}
	}

	for _, u := range a.users {
		a.pool.internString(u.user)
		a.pool.internString(u.password)
	}
	for _, g := range a.groups {
		a.pool.internString(g.user)
		a.pool.internString(g.group)
	}

	// Pre-intern every string an exec-queue entry will reference, so every
	// string chunk is emitted before the chunks that reference it even
	// though exec entries themselves are emitted last.
	for _, e := range a.execQueue {
		a.internExecEntryStrings(e)
	}

	// Emit string chunks grouped by pool kind, in insertion order.
	if err := a.emitStringChunks(w); err != nil {
		return nil, err
	}

	// Folder chunks, parents-before-children by construction (sorted paths).
	for _, f := range a.folders {
		parent, leaf := splitPath(f)
		if parent == "" {
			parent = "/"
		}
		parentRef := a.pool.internPath(parent)
		leafRef := a.pool.internString(leaf)
		var p payloadWriter
		p.ref(parentRef).ref(leafRef)
		if err := w.writeChunk(ChunkFolder, p.bytes()); err != nil {
			return nil, err
		}
	}

	for i := range resolved {
		fr := fileRefs[i]
		var p payloadWriter
		p.ref(fr.dirRef).ref(fr.nameRef).ref(fr.contentsRef)
		if err := w.writeChunk(ChunkFile, p.bytes()); err != nil {
			return nil, err
		}
	}

	for _, u := range a.users {
		var p payloadWriter
		p.ref(a.pool.internString(u.user)).ref(a.pool.internString(u.password))
		if err := w.writeChunk(ChunkAddUser, p.bytes()); err != nil {
			return nil, err
		}
	}

	for _, g := range a.groups {
		var p payloadWriter
		p.ref(a.pool.internString(g.user)).ref(a.pool.internString(g.group))
		if err := w.writeChunk(ChunkAddGroupMember, p.bytes()); err != nil {
			return nil, err
		}
	}

	testIndex := 0
	for _, e := range a.execQueue {
		if err := a.emitExecEntry(w, e, &testIndex); err != nil {
			return nil, err
		}
	}

	if len(a.Problems()) > 0 {
		return nil, ErrNoArtifact
	}

	return w.Bytes(), nil
}

func (a *Assembler) internExecEntryStrings(e execEntry) {
	switch e.kind {
	case execChmod, execChown, execChgroup:
		a.pool.internPath(e.path)
		a.pool.internString(e.value)
	case execRemoveUser:
		a.pool.internString(e.value)
	case execRemoveGroup:
		a.pool.internString(e.path)
		a.pool.internString(e.value)
	case execCopy, execMove:
		a.pool.internPath(e.from)
		a.pool.internPath(e.to)
	case execDelete:
		a.pool.internPath(e.path)
	case execLaunch:
		for _, a0 := range e.argv {
			a.pool.internString(a0)
		}
	case execBuild:
		if e.buildSourceFile == nil {
			a.pool.internPath(e.buildSourceLiteral)
		} else if path, ok := a.files.PreferredGamePath(e.buildSourceFile); ok {
			a.pool.internPath(path)
		}
		dir, name := splitPath(e.buildTarget)
		a.pool.internPath(dir)
		a.pool.internString(name)
	case execTest:
		a.pool.internString(e.testName)
		// the test file's synthetic path is only known after file-store
		// resolution, which has already run by the time this is called.
		if path, ok := a.files.PreferredGamePath(e.testFile); ok {
			a.pool.internPath(path)
		}
	}
}

func (a *Assembler) internFolderRefs(parent, leaf string) {
	a.pool.internPath(parent)
	a.pool.internString(leaf)
}

func (a *Assembler) emitStringChunks(w *chunkWriter) error {
	for _, want := range []stringKind{kindPlain, kindHomeRewritten, kindHomeRelative} {
		if err := a.emitStringChunksOfKind(w, want); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) emitStringChunksOfKind(w *chunkWriter, want stringKind) error {
	for idx, e := range a.pool.order {
		if e.kind != want {
			continue
		}
		r := ref(idx)
		switch e.kind {
		case kindPlain:
			payload, ascii, err := encodeStringPayload(r, e.text)
			if err != nil {
				a.record(newProblem(EncodingUnsupported, e.text, err))
				continue
			}
			kind := ChunkStringUTF16
			if ascii {
				kind = ChunkStringASCII
			}
			if err := w.writeChunk(kind, payload); err != nil {
				return err
			}
		case kindHomeRewritten:
			payload, ascii, err := encodeStringPayload(r, e.text)
			if err != nil {
				a.record(newProblem(EncodingUnsupported, e.text, err))
				continue
			}
			kind := ChunkStringHomeUTF16
			if ascii {
				kind = ChunkStringHomeASCII
			}
			if err := w.writeChunk(kind, payload); err != nil {
				return err
			}
		case kindHomeRelative:
			payload, err := homeRelativeFullPayload(r, e.text)
			if err != nil {
				a.record(newProblem(EncodingUnsupported, e.text, err))
				continue
			}
			if err := w.writeChunk(ChunkPathHomeRelative, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Assembler) emitExecEntry(w *chunkWriter, e execEntry, testIndex *int) error {
	switch e.kind {
	case execChmod:
		var p payloadWriter
		p.ref(a.pool.internPath(e.path)).ref(a.pool.internString(e.value)).bool(e.recursive)
		return w.writeChunk(ChunkChmod, p.bytes())
	case execChown:
		var p payloadWriter
		p.ref(a.pool.internPath(e.path)).ref(a.pool.internString(e.value)).bool(e.recursive)
		return w.writeChunk(ChunkChown, p.bytes())
	case execChgroup:
		var p payloadWriter
		p.ref(a.pool.internPath(e.path)).ref(a.pool.internString(e.value)).bool(e.recursive)
		return w.writeChunk(ChunkChgroup, p.bytes())
	case execRemoveUser:
		var p payloadWriter
		p.ref(a.pool.internString(e.value))
		return w.writeChunk(ChunkRemoveUser, p.bytes())
	case execRemoveGroup:
		var p payloadWriter
		p.ref(a.pool.internString(e.path)).ref(a.pool.internString(e.value))
		return w.writeChunk(ChunkRemoveGroupMember, p.bytes())
	case execCopy:
		var p payloadWriter
		p.ref(a.pool.internPath(e.from)).ref(a.pool.internPath(e.to))
		return w.writeChunk(ChunkCopy, p.bytes())
	case execMove:
		var p payloadWriter
		p.ref(a.pool.internPath(e.from)).ref(a.pool.internPath(e.to))
		return w.writeChunk(ChunkMove, p.bytes())
	case execDelete:
		var p payloadWriter
		p.ref(a.pool.internPath(e.path))
		return w.writeChunk(ChunkDelete, p.bytes())
	case execLaunch:
		var p payloadWriter
		p.u8(uint8(len(e.argv)))
		for _, a0 := range e.argv {
			p.ref(a.pool.internString(a0))
		}
		return w.writeChunk(ChunkLaunch, p.bytes())
	case execBuild:
		source := e.buildSourceLiteral
		if e.buildSourceFile != nil {
			path, ok := a.files.PreferredGamePath(e.buildSourceFile)
			if !ok {
				a.record(newProblem(UnresolvedReference, "", fmt.Errorf("build source file ref %d never acquired a game path", e.buildSourceFile.RefID)))
				return nil
			}
			source = path
		}
		dir, name := splitPath(e.buildTarget)
		var p payloadWriter
		p.ref(a.pool.internPath(source)).ref(a.pool.internPath(dir)).ref(a.pool.internString(name))
		return w.writeChunk(ChunkBuild, p.bytes())
	case execTest:
		path, ok := a.files.PreferredGamePath(e.testFile)
		if !ok {
			a.record(newProblem(UnresolvedReference, "", fmt.Errorf("test file ref %d never acquired a game path", e.testFile.RefID)))
			return nil
		}
		idx := *testIndex
		*testIndex++
		var p payloadWriter
		p.u16(uint16(idx)).ref(a.pool.internString(e.testName)).ref(a.pool.internPath(path))
		return w.writeChunk(ChunkTest, p.bytes())
	}
	return fmt.Errorf("bundle: unknown exec entry kind %d", e.kind)
}
