// Package canon normalizes values into a form suitable for [domain.Hasher]
// based canonical-key comparison ($group keys, $addToSet/$setEquals
// membership): documents are walked and rebuilt through a [domain.Document]
// factory so that two structurally equal values, regardless of concrete Go
// representation, hash identically.
package canon

import (
	"time"

	"github.com/vinicius-lino-figueiredo/memql/domain"
)

// Normalizer rebuilds arbitrary Values into their canonical form.
type Normalizer struct {
	docFac domain.DocumentFactory
}

// NewNormalizer returns a new Normalizer using docFac to construct documents.
func NewNormalizer(docFac domain.DocumentFactory) *Normalizer {
	return &Normalizer{docFac: docFac}
}

// Normalize deep-copies v, rewriting every [domain.Document] through the
// configured factory and every [time.Time] into a sortable, hash-stable
// representation.
func (n *Normalizer) Normalize(v any) (any, error) {
	switch t := v.(type) {
	case domain.Document:
		return n.normalizeDoc(t)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			norm, err := n.Normalize(item)
			if err != nil {
				return nil, err
			}
			res[i] = norm
		}
		return res, nil
	case time.Time:
		return t.UnixNano(), nil
	default:
		return v, nil
	}
}

func (n *Normalizer) normalizeDoc(doc domain.Document) (domain.Document, error) {
	res, err := n.docFac(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range doc.Iter() {
		norm, err := n.Normalize(v)
		if err != nil {
			return nil, err
		}
		res.Set(k, norm)
	}
	return res, nil
}

// Key hashes v's canonical form through hasher, for use as a $group/$bucket
// grouping key or an $addToSet/$setEquals membership key.
func (n *Normalizer) Key(v any, hasher domain.Hasher) (uint64, error) {
	norm, err := n.Normalize(v)
	if err != nil {
		return 0, err
	}
	return hasher.Hash(norm)
}
