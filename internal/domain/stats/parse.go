package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ParseJSON decodes a serialized record. Counts are coerced like form input; missing
// fields, a bad timestamp or negative counts fail with ErrInvalidRecord.
func ParseJSON(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	counts := make(map[Field]any, 3)
	for _, f := range []Field{FieldTotal, FieldBoys, FieldGirls} {
		field, ok := raw[string(f)]
		if !ok {
			return Record{}, fmt.Errorf("%w: missing %s", ErrInvalidRecord, f)
		}
		var v any
		dec := json.NewDecoder(bytes.NewReader(field))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, f, err)
		}
		counts[f] = v
	}

	tsField, ok := raw["lastUpdated"]
	if !ok {
		return Record{}, fmt.Errorf("%w: missing lastUpdated", ErrInvalidRecord)
	}
	var ts time.Time
	if err := json.Unmarshal(tsField, &ts); err != nil {
		return Record{}, fmt.Errorf("%w: lastUpdated: %v", ErrInvalidRecord, err)
	}

	rec := FromRaw(counts[FieldTotal], counts[FieldBoys], counts[FieldGirls], ts)
	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
