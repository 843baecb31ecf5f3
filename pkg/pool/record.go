package pool

import (
	"time"
)

// RecordMetadata describes where a record came from and what happened to it.
type RecordMetadata struct {
	// Source identifies the connector that produced the record
	Source string `json:"source,omitempty"`
	// Table is the table the record was read from or written to
	Table string `json:"table,omitempty"`
	// Operation is the write a destination performed ("insert" or "update")
	Operation string `json:"operation,omitempty"`
	// Offset is the zero-based position of the row in the reader's output
	Offset int64 `json:"offset,omitempty"`
	// Timestamp when the record was created
	Timestamp time.Time `json:"timestamp"`
}

// Record is one row flowing through a pipeline. Fields keep the order they
// were first set in, and can also be looked up by name. A Record is not safe
// for concurrent use.
type Record struct {
	ID       string         `json:"id"`
	Metadata RecordMetadata `json:"metadata"`

	fields []string
	data   map[string]interface{}
}

// RecordPool pools Record objects.
var RecordPool = New(
	func() *Record {
		return &Record{
			fields: make([]string, 0, 16),
			data:   make(map[string]interface{}, 16),
		}
	},
	func(r *Record) {
		r.Reset()
		r.ID = ""
		r.Metadata = RecordMetadata{}
	},
)

// GetRecord takes an empty record from the pool.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now()
	return r
}

// PutRecord returns a record to the pool. Nil is ignored.
func PutRecord(r *Record) {
	if r != nil {
		RecordPool.Put(r)
	}
}

// NewRecord creates a pooled record from parallel field and value slices.
func NewRecord(source string, fields []string, values []interface{}) *Record {
	r := GetRecord()
	r.ID = GenerateID("rec")
	r.Metadata.Source = source
	for i, f := range fields {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		r.Set(f, v)
	}
	return r
}

// Set assigns a field. New fields are appended to the field order.
func (r *Record) Set(field string, value interface{}) {
	if r.data == nil {
		r.data = make(map[string]interface{}, 16)
	}
	if _, ok := r.data[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.data[field] = value
}

// Get returns the value of a field.
func (r *Record) Get(field string) (interface{}, bool) {
	v, ok := r.data[field]
	return v, ok
}

// Has reports whether the record has the field.
func (r *Record) Has(field string) bool {
	_, ok := r.data[field]
	return ok
}

// Delete removes a field, keeping the order of the rest.
func (r *Record) Delete(field string) {
	if _, ok := r.data[field]; !ok {
		return
	}
	delete(r.data, field)
	for i, f := range r.fields {
		if f == field {
			r.fields = append(r.fields[:i], r.fields[i+1:]...)
			break
		}
	}
}

// Fields returns the field names in order. The slice is a copy.
func (r *Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Values returns the values in field order.
func (r *Record) Values() []interface{} {
	out := make([]interface{}, len(r.fields))
	for i, f := range r.fields {
		out[i] = r.data[f]
	}
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// Range calls fn for every field in order until fn returns false.
func (r *Record) Range(fn func(field string, value interface{}) bool) {
	for _, f := range r.fields {
		if !fn(f, r.data[f]) {
			return
		}
	}
}

// Reset removes all fields.
func (r *Record) Reset() {
	for k := range r.data {
		delete(r.data, k)
	}
	r.fields = r.fields[:0]
}

// Release returns the record to the pool. The record must not be used afterwards.
func (r *Record) Release() {
	PutRecord(r)
}
