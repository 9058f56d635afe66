// Package domain contains the core interfaces and option types shared by
// every adapter in the engine: document representation, path navigation,
// comparison, collation, expression evaluation and the operator registry.
package domain

import (
	"iter"
	"time"
)

// Decoder converts a [Document] (or any value) into a caller-supplied Go
// value, the way [github.com/mitchellh/mapstructure] decodes maps into
// structs.
type Decoder interface {
	// Decode converts from one data format to another.
	Decode(any, any) error
}

// Comparer provides ordering and comparison operations for different data
// types, following BSON canonical type order.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared.
	Comparable(any, any) bool
}

// Collator defines a total order on strings, used by [Comparer] whenever a
// collation descriptor is in effect and by $sort/$group string keys.
type Collator interface {
	// Compare returns -1, 0, or 1 based on the collation order of a and b.
	Compare(a, b string) int
}

// TimeGetter provides current time for timestamping operations, e.g. the
// $$NOW and $$CLUSTER_TIME system variables.
type TimeGetter interface {
	// GetTime returns the current time.
	GetTime() time.Time
}

// Getter represents a value that can be treated as undefined.
type Getter interface {
	// Get returns the value for the given address and a bool that indicates
	// whether the value counts as defined or not. Unset values are
	// inaccessible for some reason. If an address points to an unset key in
	// a document, or an out of bounds index in an array or any address
	// within a primitive value ([string], [bool], etc.), it counts as
	// undefined. If a value is explicitly [nil], it will not count as
	// undefined.
	Get() (value any, defined bool)
}

// GetSetter represents a value in a [Document]. It will be returned by
// [FieldNavigator] so things like identifying unset values and appending to
// nested arrays becomes easier. The default GetSetter implementation is not
// concurrency safe.
type GetSetter interface {
	// GetSetter implements [Getter]. Undefined values can neither be set
	// nor unset.
	Getter
	// Set will set a new value for the address.
	Set(any)
	// Unset removes the given value from the parent item (object or array).
	Unset()
}

// FieldNavigator provides field access operations with dot notation support,
// including the implicit array-mapping rule: a non-numeric segment applied
// to an array is mapped across every element.
type FieldNavigator interface {
	// GetField extracts values from nested documents, following path parts.
	// The returned bool reports whether the path went through an array
	// expansion.
	GetField(any, ...string) ([]GetSetter, bool, error)
	// EnsureField behaves like GetField but creates intermediate documents
	// and array slots as needed so the final segment can be set.
	EnsureField(any, ...string) ([]GetSetter, error)
	// GetAddress extracts nested path from the string address using the
	// expected notation.
	GetAddress(field string) ([]string, error)
	// SplitFields parses compound field names (as used in projections) into
	// individual field components.
	SplitFields(string) ([]string, error)
}

// Hasher generates hash values for canonical-value deduplication, used by
// $group key hashing and $addToSet/$setEquals set membership.
type Hasher interface {
	// Hash generates a hash value for the given data.
	Hash(any) (uint64, error)
}

// Document represents an insertion-ordered mapping from string keys to
// values. Implementations backed by a plain Go map (as [M] is) do not
// actually preserve insertion order; [OrderedDocument] implementations do.
// Document is read by one goroutine at a time and doesn't need to be
// concurrency safe.
type Document interface {
	// ID returns the document ID, if any, or nil.
	ID() any
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Iter returns a sequence of key-value pairs in the document.
	Iter() iter.Seq2[string, any]
	// Keys returns a sequence of keys in the document.
	Keys() iter.Seq[string]
	// Values returns a sequence of values in the document.
	Values() iter.Seq[any]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields in the document.
	Len() int
}

// Matcher evaluates whether a document matches a query predicate document.
type Matcher interface {
	// Match returns true if the value matches the query.
	Match(any, any) (bool, error)
}

// Projector reshapes documents according to a projection spec (§4.5): plain
// include/exclude directives, literal value assignments and computed
// expressions.
type Projector interface {
	// Project applies spec to every document in data, returning the
	// reshaped documents in the same order.
	Project(data []Document, spec Document) ([]Document, error)
}

// Evaluator recursively interprets a raw, uncompiled expression value
// against a document, producing a Value (any Go value); a Missing result is
// reported as "not defined" via the second Compute return.
type Evaluator interface {
	// Compute evaluates expr against doc using frame for $$ROOT/$$CURRENT/
	// variable lookups. The second return reports whether the result is
	// defined; an undefined expression result is Missing, not Null.
	Compute(doc Document, expr any, frame *Frame) (value any, defined bool, err error)
}

// Frame carries the state threaded through one evaluation of an expression
// tree: the pipeline's original input document, the document the current
// stage is operating on, and the $$variable bindings established by $let,
// $map, $filter and $reduce.
type Frame struct {
	Root    Document
	Current Document
	Vars    map[string]any
	Opts    *EngineOptions
}

// Child returns a copy of the frame with additional variable bindings
// layered on top of the existing ones, used by $let/$map/$filter/$reduce to
// introduce scoped variables without mutating the parent frame.
func (f *Frame) Child(vars map[string]any) *Frame {
	merged := make(map[string]any, len(f.Vars)+len(vars))
	for k, v := range f.Vars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return &Frame{Root: f.Root, Current: f.Current, Vars: merged, Opts: f.Opts}
}

// OperatorFunc implements one expression or accumulator operator. args are
// the already-parsed (not yet evaluated, for short-circuiting operators)
// argument expressions; eval performs a recursive Compute call back into the
// evaluator.
type OperatorFunc func(args []any, frame *Frame, eval Evaluator) (value any, defined bool, err error)

// OperatorRegistry maps a "$"-prefixed operator name to its implementation,
// generalizing the matcher's compFuncs/logicOps maps into one registry
// shared by the expression evaluator, the operator catalog and pipeline
// stages. Names are case-sensitive.
type OperatorRegistry interface {
	// Lookup returns the operator registered under name, if any.
	Lookup(name string) (OperatorFunc, bool)
	// Register adds or replaces the operator under name.
	Register(name string, fn OperatorFunc)
}

// Accumulator implements one $group/$bucket/$bucketAuto/$setWindowFields
// accumulator (e.g. $sum, $avg, $push). State is stage-local; every distinct
// group gets a fresh Accumulator from its [AccumulatorFactory].
type Accumulator interface {
	// Accumulate folds a newly computed input value into the accumulator's
	// running state.
	Accumulate(value any, defined bool) error
	// Finish returns the accumulator's final value for its group.
	Finish() (any, error)
}

// AccumulatorFactory constructs a fresh [Accumulator] for one group. It takes
// no arguments: the stage evaluates the accumulator's argument expression per
// document and passes the result to Accumulate.
type AccumulatorFactory func() Accumulator

// ScriptEvaluator executes host-provided code for $where/$function. It is
// supplied by the embedder independently of scriptEnabled, and is only
// called when scriptEnabled is also set, per §9's capability-hook design
// note.
type ScriptEvaluator interface {
	// Eval runs source (implementation-defined: a predicate function, a Go
	// closure, …) against args and returns the result.
	Eval(source any, args ...any) (any, error)
}

// Stage adapts an upstream document sequence into a new one, implementing
// one aggregation pipeline stage. Streaming stages read upstream lazily;
// blocking stages drain it fully on first pull.
type Stage interface {
	// Run returns the stage's output sequence, wrapping upstream.
	Run(upstream iter.Seq2[Document, error], rt *Runtime) iter.Seq2[Document, error]
}

// Cursor provides pull-based iteration over query/aggregation results with
// struct decoding support.
type Cursor interface {
	// Next advances the cursor to the next document, returning true if
	// available.
	Next() bool
	// Decode decodes the current document into target.
	Decode(target any) error
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases cursor resources.
	Close() error
}
