package internal

import "time"

// Record is a single query execution as returned by the query service.
// The fields the harvester reasons about are typed; everything else is
// carried through untouched in an opaque document.
type Record struct {
	ID             string
	SubmissionTime time.Time
	CompletionTime *time.Time

	fields map[string]any
}

func NewRecord(id string, submitted time.Time, completed *time.Time, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{
		ID:             id,
		SubmissionTime: submitted,
		CompletionTime: completed,
		fields:         fields,
	}
}

func (r *Record) Len() int {
	return len(r.fields)
}

// Map returns a shallow copy of the record's document. Nested objects are
// shared with the record, callers replacing them must copy first.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}
