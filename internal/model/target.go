package model

// Target is one unit the supervisor patches: the wrapped CLI, the server
// tree or one extension directory.
type Target struct {
	Kind  string // "cli", "server" or "extension"
	Path  string // path as configured or listed in the manifest
	Stats Stats
	Err   error // non-nil if the target could not be patched as a whole
}

// Report collects the targets of one patch run.
type Report struct {
	Targets []Target
}

// Add appends a target.
func (r *Report) Add(t Target) {
	r.Targets = append(r.Targets, t)
}

// Totals sums the statistics of every target.
func (r Report) Totals() Stats {
	var total Stats
	for _, t := range r.Targets {
		total.Visited += t.Stats.Visited
		total.Patched += t.Stats.Patched
		total.Skipped += t.Stats.Skipped
		total.Failed += t.Stats.Failed
	}
	return total
}
