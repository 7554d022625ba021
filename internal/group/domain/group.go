package domain

// Group is a broker access group. Robots belong to exactly one group; sources,
// photometry, and spectra are shared with a set of groups.
type Group struct {
	ID   int64
	Name string
}
