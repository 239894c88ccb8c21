package bundle

import "errors"

// Kind classifies a problem recorded during manifest intake or assembly.
type Kind int

const (
	ManifestInvalid Kind = iota
	DuplicateTarget
	SourceMissing
	ImportUnresolved
	EncodingUnsupported
	ArgvRange
	UnresolvedReference
)

func (k Kind) String() string {
	switch k {
	case ManifestInvalid:
		return "manifest_invalid"
	case DuplicateTarget:
		return "duplicate_target"
	case SourceMissing:
		return "source_missing"
	case ImportUnresolved:
		return "import_unresolved"
	case EncodingUnsupported:
		return "encoding_unsupported"
	case ArgvRange:
		return "argv_range"
	case UnresolvedReference:
		return "unresolved_reference"
	default:
		return "unknown"
	}
}

// Problem is a single recorded setup failure. Assembly keeps going after a
// Problem is recorded so a run can surface more than one at a time; the
// final artifact is withheld if any Problem was recorded.
type Problem struct {
	Kind Kind
	Path string
	Err  error
}

func (p *Problem) Error() string {
	if p.Err != nil {
		if p.Path != "" {
			return p.Kind.String() + ": " + p.Path + ": " + p.Err.Error()
		}
		return p.Kind.String() + ": " + p.Err.Error()
	}
	if p.Path != "" {
		return p.Kind.String() + ": " + p.Path
	}
	return p.Kind.String()
}

func (p *Problem) Unwrap() error { return p.Err }

func newProblem(kind Kind, path string, err error) *Problem {
	return &Problem{Kind: kind, Path: path, Err: err}
}

// ErrNoArtifact is returned by Assemble when one or more Problems were
// recorded during intake or resolution; the caller should consult Problems()
// for the full list rather than treat this as a single failure.
var ErrNoArtifact = errors.New("bundle: assembly produced no artifact due to recorded problems")
