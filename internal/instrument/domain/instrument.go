package domain

// Instrument is an entry in the local instrument catalog. TNSID is the
// instrument's identifier on the Transient Name Server side; TNSFilters lists the
// TNS filter names this instrument reports in, in the order TNS publishes them.
type Instrument struct {
	ID         int64
	Name       string
	TNSID      int
	TNSFilters []string
}
