package httputil

import (
	"bytes"
	"encoding/json"
)

// Patch is one field of a JSON merge-patch body (RFC 7396). A key that is
// absent leaves Set false; an explicit null sets both Set and Null.
type Patch[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON only runs for keys present in the body
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		p.Null, p.Value = true, zero
		return nil
	}
	p.Null = false
	return json.Unmarshal(data, &p.Value)
}

// Ptr returns nil for an absent key and a pointer to the value otherwise.
// A null resolves to the zero value.
func (p Patch[T]) Ptr() *T {
	if !p.Set {
		return nil
	}
	v := p.Value
	return &v
}
