package reconciler

// DedupTracker remembers the ledger transactions a worker has already
// evaluated. It only grows and is owned by a single worker.
type DedupTracker struct {
	seen map[string]struct{}
}

// NewDedupTracker returns an empty tracker.
func NewDedupTracker() *DedupTracker {
	return &DedupTracker{seen: make(map[string]struct{})}
}

// Add records hash and reports whether it was new.
func (d *DedupTracker) Add(hash string) bool {
	if _, ok := d.seen[hash]; ok {
		return false
	}
	d.seen[hash] = struct{}{}
	return true
}

// Len is the number of distinct transactions evaluated so far.
func (d *DedupTracker) Len() int {
	return len(d.seen)
}
