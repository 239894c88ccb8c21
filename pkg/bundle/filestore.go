package bundle

import (
	"fmt"
	"os"
	gopath "path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// StoredFile is one logical file the bundle carries, mirroring ghtar.py's
// StoredFile class. It is held by pointer in FileStore.files and indexed by
// RefID; resolution never mutates a StoredFile's identity, only its
// content/path fields as they become known.
type StoredFile struct {
	RefID int

	// AbsLocalPath is the resolved host path backing this file, or "" if
	// Contents was supplied inline.
	AbsLocalPath string

	Contents       string
	contentsLoaded bool

	IsSource        bool
	IsHomeRewritten bool

	RequestedGamePath string
	SyntheticGamePath string
}

// ResolvedFile is one emission target for a StoredFile: a (path, contents)
// pair. A single StoredFile can yield two ResolvedFiles when it has both a
// requested and a synthetic path.
type ResolvedFile struct {
	RefID           int
	GamePath        string
	Contents        string
	IsHomeRewritten bool
}

// FileStore owns file intake and the import-rewrite resolution pass
// described in ghtar.py's FileManager. Every call that reads a local file
// takes its own base directory; each is joined through a traversal-safe
// join confined to that directory, matching how a manifest block resolves
// against its own file's directory and an import target resolves against
// its referrer's directory, rather than one single project-wide root.
type FileStore struct {
	files      []*StoredFile
	byAbsLocal map[string]*StoredFile
	requested  map[string]bool // requested game paths already claimed
	synthetic  map[string]bool // synthetic game paths already assigned

	worklist []*StoredFile

	problems []*Problem
	resolved []ResolvedFile
}

func NewFileStore() *FileStore {
	return &FileStore{
		byAbsLocal: make(map[string]*StoredFile),
		requested:  make(map[string]bool),
		synthetic:  make(map[string]bool),
	}
}

func (fs *FileStore) record(p *Problem) {
	fs.problems = append(fs.problems, p)
}

// Problems returns every setup-time problem recorded so far.
func (fs *FileStore) Problems() []*Problem { return fs.problems }

func (fs *FileStore) claimRequested(gamePath string) error {
	if gamePath == "" {
		return nil
	}
	if fs.requested[gamePath] {
		return newProblem(DuplicateTarget, gamePath, nil)
	}
	fs.requested[gamePath] = true
	return nil
}

// resolveLocal joins rel against relTo through a traversal-safe join and
// stats the result eagerly, matching ghtar.py's add_local_text_file and
// _inner_add_local_source_file, which both call os.path.isfile at add-time
// rather than deferring the check to content-load time. securejoin itself
// tolerates a missing final path component, so the stat is required to
// actually catch a missing file here.
func (fs *FileStore) resolveLocal(relTo, rel string) (string, error) {
	abs, err := securejoin.SecureJoin(relTo, rel)
	if err != nil {
		return "", newProblem(SourceMissing, rel, err)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory, not a file", abs)
		}
		return "", newProblem(SourceMissing, rel, err)
	}
	return abs, nil
}

// AddTextContents registers inline text content at gamePath.
func (fs *FileStore) AddTextContents(gamePath, contents string) (*StoredFile, error) {
	if err := fs.claimRequested(gamePath); err != nil {
		fs.record(err.(*Problem))
		return nil, err
	}
	sf := &StoredFile{
		RefID:             len(fs.files),
		Contents:          contents,
		contentsLoaded:    true,
		RequestedGamePath: gamePath,
	}
	fs.files = append(fs.files, sf)
	return sf, nil
}

// AddLocalTextFile registers a lazily-read, non-rewritten local file. relTo
// is the directory localPath is resolved against.
func (fs *FileStore) AddLocalTextFile(gamePath, relTo, localPath string) (*StoredFile, error) {
	if err := fs.claimRequested(gamePath); err != nil {
		fs.record(err.(*Problem))
		return nil, err
	}
	abs, err := fs.resolveLocal(relTo, localPath)
	if err != nil {
		fs.record(err.(*Problem))
		return nil, err
	}
	sf := &StoredFile{
		RefID:             len(fs.files),
		AbsLocalPath:      abs,
		RequestedGamePath: gamePath,
	}
	fs.files = append(fs.files, sf)
	fs.byAbsLocal[abs] = sf
	return sf, nil
}

// AddLocalSourceFile registers a source file subject to import rewriting.
// gamePath may be empty, in which case a synthetic path is invented during
// resolution. relTo is the directory localPath is resolved against.
func (fs *FileStore) AddLocalSourceFile(gamePath, relTo, localPath string) (*StoredFile, error) {
	if err := fs.claimRequested(gamePath); err != nil {
		fs.record(err.(*Problem))
		return nil, err
	}
	abs, err := fs.resolveLocal(relTo, localPath)
	if err != nil {
		fs.record(err.(*Problem))
		return nil, err
	}
	if existing, ok := fs.byAbsLocal[abs]; ok {
		if gamePath != "" && existing.RequestedGamePath == "" {
			existing.RequestedGamePath = gamePath
		}
		return existing, nil
	}
	sf := &StoredFile{
		RefID:             len(fs.files),
		AbsLocalPath:      abs,
		IsSource:          true,
		IsHomeRewritten:   true,
		RequestedGamePath: gamePath,
	}
	fs.files = append(fs.files, sf)
	fs.byAbsLocal[abs] = sf
	fs.worklist = append(fs.worklist, sf)
	return sf, nil
}

// FindByRequestedPath looks up a StoredFile by the exact requested game
// path a manifest entry asked for, used by add_build to defer to a
// synthetic path chosen later.
func (fs *FileStore) FindByRequestedPath(p string) (*StoredFile, bool) {
	for _, sf := range fs.files {
		if sf.RequestedGamePath == p {
			return sf, true
		}
	}
	return nil, false
}

// PreferredGamePath returns the game path this file should be referenced
// by once resolution has run: synthetic first (it is always a safe,
// reachable path for sources), falling back to requested.
func (fs *FileStore) PreferredGamePath(sf *StoredFile) (string, bool) {
	if sf.SyntheticGamePath != "" {
		return sf.SyntheticGamePath, true
	}
	if sf.RequestedGamePath != "" {
		return sf.RequestedGamePath, true
	}
	return "", false
}

var importLineRe = regexp.MustCompile(`^\s*import_code\s*\(\s*"([^"]+)"\s*\)\s*$`)

const homePlaceholder = "<[HOME]>"

// Resolve runs process_file_map: loads contents, rewrites imports in
// sources, and invents synthetic paths, until the worklist (which grows as
// imports are discovered) is empty. It returns the final ResolvedFile set.
// Errors are recorded as Problems rather than returned, so a single run can
// surface every intake failure.
func (fs *FileStore) Resolve() []ResolvedFile {
	for len(fs.worklist) > 0 {
		sf := fs.worklist[0]
		fs.worklist = fs.worklist[1:]
		fs.resolveOne(sf)
	}
	// Non-source files never entered the worklist; resolve them directly.
	for _, sf := range fs.files {
		if !sf.IsSource {
			fs.emit(sf)
		}
	}
	return fs.resolved
}

func (fs *FileStore) loadContents(sf *StoredFile) bool {
	if sf.contentsLoaded {
		return true
	}
	if sf.AbsLocalPath == "" {
		sf.contentsLoaded = true
		return true
	}
	b, err := os.ReadFile(sf.AbsLocalPath)
	if err != nil {
		fs.record(newProblem(SourceMissing, sf.AbsLocalPath, err))
		return false
	}
	sf.Contents = string(b)
	sf.contentsLoaded = true
	return true
}

func (fs *FileStore) resolveOne(sf *StoredFile) {
	if !fs.loadContents(sf) {
		return
	}
	rewritten, ok := fs.rewriteImports(sf)
	if ok {
		sf.Contents = rewritten
	}

	if sf.RequestedGamePath == "" && sf.SyntheticGamePath == "" {
		base := gopath.Base(sf.AbsLocalPath)
		for n := 0; ; n++ {
			candidate := "~/.tmp/src/" + strconv.Itoa(n) + "/" + base
			if !fs.synthetic[candidate] {
				sf.SyntheticGamePath = sanitizeSourceName(candidate, fs.synthetic)
				fs.synthetic[sf.SyntheticGamePath] = true
				break
			}
		}
	}
	fs.emit(sf)
}

func (fs *FileStore) emit(sf *StoredFile) {
	if !fs.loadContents(sf) {
		return
	}
	emitted := false
	if sf.RequestedGamePath != "" {
		fs.resolved = append(fs.resolved, ResolvedFile{
			RefID:           sf.RefID,
			GamePath:        sf.RequestedGamePath,
			Contents:        sf.Contents,
			IsHomeRewritten: sf.IsHomeRewritten,
		})
		emitted = true
	}
	if sf.SyntheticGamePath != "" {
		fs.resolved = append(fs.resolved, ResolvedFile{
			RefID:           sf.RefID,
			GamePath:        sf.SyntheticGamePath,
			Contents:        sf.Contents,
			IsHomeRewritten: sf.IsHomeRewritten,
		})
		emitted = true
	}
	if !emitted {
		fs.record(newProblem(UnresolvedReference, "", fmt.Errorf("file ref %d has no game path", sf.RefID)))
	}
}

// rewriteImports runs the line-based import rewriter over sf's contents. It
// returns the rewritten text and whether every import resolved cleanly.
func (fs *FileStore) rewriteImports(sf *StoredFile) (string, bool) {
	if !sf.IsSource {
		return sf.Contents, true
	}
	lines := strings.Split(sf.Contents, "\n")
	out := make([]string, len(lines))
	ok := true
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		line = stripTrailingComment(line)

		m := importLineRe.FindStringSubmatch(line)
		if m == nil {
			out[i] = line
			continue
		}
		target := m[1]
		rewritten, err := fs.resolveImportTarget(sf, target)
		if err != nil {
			fs.record(newProblem(ImportUnresolved, target, err))
			ok = false
			out[i] = ""
			continue
		}
		out[i] = rewritten
	}
	return strings.Join(out, "\n"), ok
}

func (fs *FileStore) resolveImportTarget(referrer *StoredFile, target string) (string, error) {
	referDir := filepath.Dir(referrer.AbsLocalPath)
	abs, err := fs.resolveLocal(referDir, target)
	if err != nil {
		return "", err
	}

	var targetFile *StoredFile
	if existing, found := fs.byAbsLocal[abs]; found {
		targetFile = existing
	} else {
		targetFile = &StoredFile{
			RefID:           len(fs.files),
			AbsLocalPath:    abs,
			IsSource:        true,
			IsHomeRewritten: true,
		}
		fs.files = append(fs.files, targetFile)
		fs.byAbsLocal[abs] = targetFile
		fs.worklist = append(fs.worklist, targetFile)
	}

	if targetFile.SyntheticGamePath == "" {
		var candidate string
		if targetFile.RequestedGamePath != "" {
			candidate = targetFile.RequestedGamePath
		} else {
			candidate = "~/.tmp/src/" + target
		}
		targetFile.SyntheticGamePath = sanitizeSourceName(candidate, fs.synthetic)
		fs.synthetic[targetFile.SyntheticGamePath] = true
	}

	referrer.IsHomeRewritten = true
	dest := targetFile.SyntheticGamePath
	if strings.HasPrefix(dest, "~/") {
		dest = homePlaceholder + "/" + strings.TrimPrefix(dest, "~/")
	} else if dest == "~" {
		dest = homePlaceholder
	}
	return fmt.Sprintf(`import_code("%s")`, dest), nil
}

// stripTrailingComment removes a trailing "//" line comment that occurs
// outside of a double-quoted string, matching ghtar.py's
// FileManager._strip_trailing_comment three-state scan.
func stripTrailingComment(line string) string {
	const (
		stPlain = iota
		stString
		stSawSlash
	)
	state := stPlain
	cut := -1
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch state {
		case stPlain:
			switch c {
			case '"':
				state = stString
			case '/':
				state = stSawSlash
			}
		case stString:
			if c == '"' {
				state = stPlain
			}
		case stSawSlash:
			if c == '/' {
				cut = i - 1
				i = len(line)
				continue
			}
			state = stPlain
			if c == '"' {
				state = stString
			}
		}
	}
	if cut >= 0 {
		return strings.TrimRight(line[:cut], " \t")
	}
	return line
}
