package domain

// ReconcileReport describes one partition rebuild.
type ReconcileReport struct {
	DomainID uint16

	// Before is the partition size prior to the rebuild.
	Before int

	// Indexed is the number of atoms loaded back into the partition.
	Indexed int

	// Missing counts persisted atoms that were absent from the partition.
	Missing int

	// Stale counts partition entries that had no persisted atom.
	Stale int
}

// InSync reports whether the partition already matched the store.
func (r *ReconcileReport) InSync() bool {
	return r.Missing == 0 && r.Stale == 0
}

// SyncFailure records one file that could not be indexed.
type SyncFailure struct {
	Path string
	Err  error
}

// SyncReport summarises one expertise folder sync.
type SyncReport struct {
	// Domains lists the domain keys visited.
	Domains []string

	Indexed   int
	Removed   int
	Unchanged int

	Failures []SyncFailure
}

// Changed reports whether the sync touched any document.
func (r *SyncReport) Changed() bool {
	return r.Indexed > 0 || r.Removed > 0
}
