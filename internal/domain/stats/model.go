package stats

import "time"

// DefaultKey is the durable slot name. Bump the suffix whenever the record shape changes
// so older payloads read as absent.
const DefaultKey = "school_stats_v3"

// Record is the published student headcount.
type Record struct {
	Total       int       `json:"total"`
	Boys        int       `json:"boys"`
	Girls       int       `json:"girls"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Default returns the record shown before anything has been published. Its zero
// timestamp loses against every persisted or shared record.
func Default() Record {
	return Record{
		Total: 140,
		Boys:  60,
		Girls: 80,
	}
}

// Consistent reports whether the total matches its parts.
func (r Record) Consistent() bool {
	return r.Total == r.Boys+r.Girls
}

// Newer reports whether r was published strictly after other.
func (r Record) Newer(other Record) bool {
	return r.LastUpdated.After(other.LastUpdated)
}

// Equal compares counts and timestamps, ignoring monotonic clock and location.
func (r Record) Equal(other Record) bool {
	return r.Total == other.Total &&
		r.Boys == other.Boys &&
		r.Girls == other.Girls &&
		r.LastUpdated.Equal(other.LastUpdated)
}

// Field names an editable count.
type Field string

const (
	FieldTotal Field = "total"
	FieldBoys  Field = "boys"
	FieldGirls Field = "girls"
)

// ParseField maps a raw field name to a Field.
func ParseField(name string) (Field, bool) {
	switch Field(name) {
	case FieldTotal, FieldBoys, FieldGirls:
		return Field(name), true
	default:
		return "", false
	}
}
