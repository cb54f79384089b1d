package patch

import "fmt"

// Kind identifies the step of a patch operation that failed.
type Kind int

const (
	KindStat Kind = iota
	KindRead
	KindRestore
	KindEdit
	KindBackup
	KindInstall
	KindWalk
	KindCanonicalize
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindStat:
		return "stat"
	case KindRead:
		return "read"
	case KindRestore:
		return "restore backup"
	case KindEdit:
		return "set interpreter"
	case KindBackup:
		return "back up original"
	case KindInstall:
		return "install patched file"
	case KindWalk:
		return "walk"
	case KindCanonicalize:
		return "canonicalize"
	case KindMarker:
		return "write marker"
	default:
		return "unknown"
	}
}

// Error describes a failed patch step. Err is the underlying OS or editor
// error.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
