// Package cursor contains the default [domain.Cursor] implementation: a
// single-threaded iterator over an already-resolved slice of documents.
package cursor

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/decoder"
)

// Cursor implements [domain.Cursor].
type Cursor struct {
	data      []domain.Document
	dec       domain.Decoder
	started   bool
	closed    bool
	storedErr error
}

// NewCursor returns a new implementation of [domain.Cursor] over dt. Matching,
// sorting, skip/limit and projection are all resolved by the caller before
// the cursor is created; the cursor itself only walks the result.
func NewCursor(dt []domain.Document, options ...domain.CursorOption) domain.Cursor {
	opts := domain.CursorOptions{
		Decoder: decoder.NewDecoder(),
	}
	for _, option := range options {
		option(&opts)
	}

	return &Cursor{data: dt, dec: opts.Decoder}
}

// Next implements [domain.Cursor].
func (c *Cursor) Next() bool {
	if c.closed || len(c.data) == 0 {
		return false
	}
	if c.started {
		c.data = c.data[1:]
	}
	c.started = true
	return len(c.data) > 0
}

// Decode implements [domain.Cursor].
func (c *Cursor) Decode(target any) error {
	if c.storedErr != nil {
		return c.storedErr
	}
	if target == nil {
		return &domain.ErrTargetNil{}
	}
	if !c.started {
		return fmt.Errorf("called Decode before calling Next")
	}
	if len(c.data) == 0 {
		return fmt.Errorf("called Decode on exhausted cursor")
	}
	return c.dec.Decode(c.data[0], target)
}

// Err implements [domain.Cursor].
func (c *Cursor) Err() error {
	return c.storedErr
}

// Close implements [domain.Cursor].
func (c *Cursor) Close() error {
	c.data = nil
	c.closed = true
	return nil
}
