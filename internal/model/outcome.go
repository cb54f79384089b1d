package model

// Outcome is the result of one attempt to patch one file.
type Outcome int

const (
	NotApplicable Outcome = iota // not an ELF, wrong loader, patch artifact...
	Patched                      // interpreter rewritten and installed
	Failed                       // error part way through; see the returned error
)

func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "not-applicable"
	case Patched:
		return "patched"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts outcomes for one patched target (a file or a tree).
type Stats struct {
	Visited int  // entries handed to the patch protocol
	Patched int  // files rewritten
	Skipped int  // files found not applicable
	Failed  int  // files or entries that errored
	Cached  bool // a valid marker short-circuited the walk
}

// Add records one outcome.
func (s *Stats) Add(o Outcome) {
	s.Visited++
	switch o {
	case Patched:
		s.Patched++
	case Failed:
		s.Failed++
	default:
		s.Skipped++
	}
}
