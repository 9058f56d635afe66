package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/vinicius-lino-figueiredo/memql/domain"
)

// OrderedDocument implements [domain.Document] with genuine insertion-order
// storage: a key slice backs iteration order, a position index backs lookups.
// Unlike [M], re-setting an existing key updates its value in place without
// moving it to the end.
type OrderedDocument struct {
	keys []string
	pos  map[string]int
	vals []any
}

// NewOrderedDocument returns an empty [OrderedDocument].
func NewOrderedDocument() *OrderedDocument {
	return &OrderedDocument{pos: make(map[string]int)}
}

// OrderedPair is a single key/value entry for [NewOrderedDocumentFromPairs].
type OrderedPair struct {
	Key   string
	Value any
}

// NewOrderedDocumentFromPairs builds an [OrderedDocument] from an explicit
// key order, for Go callers that need to spell out a multi-key order a map
// literal can't carry — e.g. a compound $sort spec.
func NewOrderedDocumentFromPairs(pairs ...OrderedPair) *OrderedDocument {
	d := &OrderedDocument{
		keys: make([]string, 0, len(pairs)),
		pos:  make(map[string]int, len(pairs)),
		vals: make([]any, 0, len(pairs)),
	}
	for _, p := range pairs {
		d.Set(p.Key, p.Value)
	}
	return d
}

// ID implements domain.Document.
func (d *OrderedDocument) ID() any {
	return d.Get("_id")
}

// Get implements domain.Document.
func (d *OrderedDocument) Get(key string) any {
	if n, ok := d.pos[key]; ok {
		return d.vals[n]
	}
	return nil
}

// Set implements domain.Document.
func (d *OrderedDocument) Set(key string, value any) {
	if n, ok := d.pos[key]; ok {
		d.vals[n] = value
		return
	}
	if d.pos == nil {
		d.pos = make(map[string]int)
	}
	d.pos[key] = len(d.keys)
	d.keys = append(d.keys, key)
	d.vals = append(d.vals, value)
}

// Unset implements domain.Document.
func (d *OrderedDocument) Unset(key string) {
	n, ok := d.pos[key]
	if !ok {
		return
	}
	d.keys = append(d.keys[:n], d.keys[n+1:]...)
	d.vals = append(d.vals[:n], d.vals[n+1:]...)
	delete(d.pos, key)
	for i := n; i < len(d.keys); i++ {
		d.pos[d.keys[i]] = i
	}
}

// D implements domain.Document.
func (d *OrderedDocument) D(key string) domain.Document {
	r := d.Get(key)
	if r == nil {
		return nil
	}
	if doc, ok := r.(domain.Document); ok {
		return doc
	}
	return nil
}

// Iter implements domain.Document.
func (d *OrderedDocument) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for n, k := range d.keys {
			if !yield(k, d.vals[n]) {
				return
			}
		}
	}
}

// Keys implements domain.Document.
func (d *OrderedDocument) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range d.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Values implements domain.Document.
func (d *OrderedDocument) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range d.vals {
			if !yield(v) {
				return
			}
		}
	}
}

// Has implements domain.Document.
func (d *OrderedDocument) Has(key string) bool {
	_, ok := d.pos[key]
	return ok
}

// Len implements domain.Document.
func (d *OrderedDocument) Len() int {
	return len(d.keys)
}

// MarshalJSON implements json.Marshaler, emitting fields in insertion order.
// encoding/json's struct-based marshaling can't be used here since it would
// reach into keys/pos/vals directly; this writes the object by hand instead.
func (d *OrderedDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for n, k := range d.keys {
		if n > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(d.vals[n])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler via the package's own parser
// rather than encoding/json, since encoding/json discards source key order
// before this method ever sees the bytes.
func (d *OrderedDocument) UnmarshalJSON(input []byte) error {
	p := &parser{data: input, n: len(input)}
	v, err := p.parse()
	if err != nil {
		return err
	}
	obj, ok := v.(*OrderedDocument)
	if !ok {
		return fmt.Errorf("expected Document, received %T", v)
	}
	*d = *obj
	return nil
}

// ToM flattens doc into a plain [M], discarding insertion order, recursing
// into nested documents and document-valued slice elements. Intended for
// callers that only care about content, not the concrete [domain.Document]
// implementation or field order — e.g. content-only test assertions against
// a result that may be backed by [OrderedDocument].
func ToM(doc domain.Document) M {
	if doc == nil {
		return nil
	}
	m := make(M, doc.Len())
	for k, v := range doc.Iter() {
		m[k] = flattenValue(v)
	}
	return m
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case domain.Document:
		return ToM(t)
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = flattenValue(e)
		}
		return res
	default:
		return v
	}
}
