package stats

// Reconcile picks the record with the latest LastUpdated among current and the
// non-nil candidates. Ties keep current, so replaying the same candidates is a no-op.
// The boolean reports whether a candidate replaced current.
func Reconcile(current Record, candidates ...*Record) (Record, bool) {
	chosen := current
	replaced := false
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if c.Newer(chosen) {
			chosen = *c
			replaced = true
		}
	}
	return chosen, replaced
}
