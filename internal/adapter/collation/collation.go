// Package collation contains the default [domain.Collator] implementation,
// wrapping golang.org/x/text/collate for locale-aware string ordering.
package collation

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vinicius-lino-figueiredo/memql/domain"
)

// Collator implements [domain.Collator].
type Collator struct {
	col *collate.Collator
}

// NewCollator returns a [domain.Collator] configured per desc. A nil desc
// yields byte-wise (Go default string comparison) ordering.
func NewCollator(desc *domain.CollationDescriptor) domain.Collator {
	if desc == nil {
		return &Collator{}
	}

	tag := language.Und
	if desc.Locale != "" {
		if t, err := language.Parse(desc.Locale); err == nil {
			tag = t
		}
	}

	opts := []collate.Option{}
	switch desc.Strength {
	case 1:
		opts = append(opts, collate.Primary)
	case 2:
		opts = append(opts, collate.Secondary)
	case 3, 0:
		opts = append(opts, collate.Tertiary)
	default:
		opts = append(opts, collate.Quaternary)
	}
	if desc.Backwards {
		opts = append(opts, collate.Force)
	}
	if desc.NumericOrdering {
		opts = append(opts, collate.Numeric)
	}
	if desc.CaseFirst != "" || desc.Alternate == "shifted" {
		opts = append(opts, collate.Loose)
	}

	return &Collator{col: collate.New(tag, opts...)}
}

// Compare implements [domain.Collator].
func (c *Collator) Compare(a, b string) int {
	if c.col == nil {
		if a == b {
			return 0
		}
		if a < b {
			return -1
		}
		return 1
	}
	return c.col.CompareString(a, b)
}
