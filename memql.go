// Package memql implements an in-memory, MongoDB-flavored query and
// aggregation engine: [NewQuery] evaluates a predicate document with
// Test/Find/Remove, [NewAggregator] runs a compiled pipeline of stages, and
// the top-level [Find]/[Aggregate] wrap both into one call for callers that
// don't need to reuse a compiled query or pipeline.
package memql

import (
	"iter"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/collation"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/cursor"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/expr"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/operators"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/pipeline"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/projector"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/timegetter"
)

// Document is an insertion-ordered mapping from string keys to values, the
// unit every query and pipeline operates on.
type Document = domain.Document

// M is the default map-backed [Document] implementation.
type M = data.M

// NewDocument builds a [Document] out of a struct, map or existing Document.
var NewDocument = data.NewDocument

// Option configures a [Query] or [Aggregator] through the functional
// options pattern.
type Option = domain.EngineOption

// Collation, processing mode, ID key, variable bindings, script hook and
// $lookup/$graphLookup collection context, re-exported from domain so
// callers only need to import this package.
var (
	WithCollation      = domain.WithEngineCollation
	WithProcessingMode = domain.WithEngineProcessingMode
	WithIDKey          = domain.WithEngineIDKey
	WithVariables      = domain.WithEngineVariables
	WithScriptEnabled  = domain.WithEngineScriptEnabled
	WithScript         = domain.WithEngineScriptEvaluator
	WithContext        = domain.WithEngineContext
	WithOperators      = domain.WithEngineOperators
)

// runtime bundles the compiled comparer/matcher/projector/evaluator/operator
// stack built from a set of [Option]s, shared by a [Query] or [Aggregator].
type runtime struct {
	opts    *domain.EngineOptions
	docFac  domain.DocumentFactory
	cmp     domain.Comparer
	coll    domain.Collator
	fn      domain.FieldNavigator
	matcher domain.Matcher
	proj    domain.Projector
	eval    domain.Evaluator
	ops     domain.OperatorRegistry
	hash    domain.Hasher
	now     domain.TimeGetter
}

func newRuntime(opts ...Option) *runtime {
	eo := &domain.EngineOptions{IDKey: "_id"}
	for _, opt := range opts {
		opt(eo)
	}

	docFac := data.NewDocument
	coll := collation.NewCollator(eo.Collation)
	cmp := comparer.NewComparer(domain.WithComparerCollator(coll))
	fn := fieldnavigator.NewFieldNavigator(docFac)
	now := timegetter.NewTimeGetter()
	ops := operators.NewRegistry(eo.ExtraOperators)
	ev := expr.NewEvaluator(ops, fn, now)

	m := matcher.NewMatcher(
		domain.WithMatcherDocumentFactory(docFac),
		domain.WithMatcherComparer(cmp),
		domain.WithMatcherFieldNavigator(fn),
		domain.WithMatcherEvaluator(ev),
		domain.WithMatcherScript(eo.Script, eo.ScriptEnabled),
	)
	proj := projector.NewProjector(
		domain.WithProjectorDocumentFactory(docFac),
		domain.WithProjectorFieldNavigator(fn),
		domain.WithProjectorEvaluator(ev),
		domain.WithProjectorMatcher(m),
	)

	return &runtime{
		opts:    eo,
		docFac:  docFac,
		cmp:     cmp,
		coll:    coll,
		fn:      fn,
		matcher: m,
		proj:    proj,
		eval:    ev,
		ops:     ops,
		hash:    hasher.NewHasher(),
		now:     now,
	}
}

func (r *runtime) domainRuntime() *domain.Runtime {
	rt := &domain.Runtime{
		DocFac:         r.docFac,
		Comparer:       r.cmp,
		FieldNavigator: r.fn,
		Matcher:        r.matcher,
		Projector:      r.proj,
		Evaluator:      r.eval,
		Operators:      r.ops,
		Hasher:         r.hash,
		Opts:           r.opts,
	}
	if r.opts.Context != nil {
		rt.Lookup = func(name string) ([]domain.Document, bool) {
			docs, ok := r.opts.Context[name]
			return docs, ok
		}
	}
	return rt
}

func asDocument(v any) (Document, error) {
	if v == nil {
		return data.M{}, nil
	}
	if doc, ok := v.(Document); ok {
		return doc, nil
	}
	return data.NewDocument(v)
}

func emitDocs(docs []Document) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func drainSeq(seq iter.Seq2[Document, error]) ([]Document, error) {
	var res []Document
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, nil
}

// Query is a compiled predicate document, reusable across many Test/Find/
// Remove calls against different document slices.
type Query struct {
	predicate Document
	rt        *runtime
}

// NewQuery compiles predicate (a [Document] or anything [NewDocument]
// accepts) under opts.
func NewQuery(predicate any, opts ...Option) (*Query, error) {
	doc, err := asDocument(predicate)
	if err != nil {
		return nil, err
	}
	return &Query{predicate: doc, rt: newRuntime(opts...)}, nil
}

// Test reports whether doc matches the compiled predicate.
func (q *Query) Test(doc any) (bool, error) {
	d, err := asDocument(doc)
	if err != nil {
		return false, err
	}
	return q.rt.matcher.Match(d, q.predicate)
}

// Find returns a lazy sequence of the documents in docs matching the
// predicate.
func (q *Query) Find(docs []Document) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		for _, doc := range docs {
			ok, err := q.rt.matcher.Match(doc, q.predicate)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if ok && !yield(doc, nil) {
				return
			}
		}
	}
}

// Remove returns a lazy sequence of the documents in docs matching the
// predicate, i.e. the ones a caller holding its own mutable storage would
// delete. The engine has no write path of its own (see Non-goals); Remove
// only identifies candidates.
func (q *Query) Remove(docs []Document) iter.Seq2[Document, error] {
	return q.Find(docs)
}

// Aggregator is a compiled aggregation pipeline, reusable across many Run
// calls against different document slices.
type Aggregator struct {
	stages []domain.Stage
	rt     *runtime
}

// NewAggregator compiles stages (each a [Document] or anything [NewDocument]
// accepts, one "$stageName" key per entry) under opts.
func NewAggregator(stages []any, opts ...Option) (*Aggregator, error) {
	spec := make([]Document, 0, len(stages))
	for _, s := range stages {
		doc, err := asDocument(s)
		if err != nil {
			return nil, err
		}
		spec = append(spec, doc)
	}
	compiled, err := pipeline.Compile(spec)
	if err != nil {
		return nil, err
	}
	return &Aggregator{stages: compiled, rt: newRuntime(opts...)}, nil
}

// Run executes the compiled pipeline over docs, returning the final stage's
// lazy output sequence.
func (a *Aggregator) Run(docs []Document) iter.Seq2[Document, error] {
	rt := a.rt.domainRuntime()
	seq := emitDocs(docs)
	for _, stage := range a.stages {
		seq = stage.Run(seq, rt)
	}
	return seq
}

// Stream is an alias for Run: the runtime has no separate batch mode, so
// both names return the same lazy sequence.
func (a *Aggregator) Stream(docs []Document) iter.Seq2[Document, error] {
	return a.Run(docs)
}

// Aggregate compiles stages and runs them over docs in one call.
func Aggregate(docs []Document, stages []any, opts ...Option) (iter.Seq2[Document, error], error) {
	agg, err := NewAggregator(stages, opts...)
	if err != nil {
		return nil, err
	}
	return agg.Run(docs), nil
}

// Find compiles filter and projection and runs them over docs in one call.
// filter and projection may be nil.
func Find(docs []Document, filter any, projection any, opts ...Option) (iter.Seq2[Document, error], error) {
	q, err := NewQuery(filter, opts...)
	if err != nil {
		return nil, err
	}
	matched, err := drainSeq(q.Find(docs))
	if err != nil {
		return nil, err
	}
	projDoc, err := asDocument(projection)
	if err != nil {
		return nil, err
	}
	if projDoc.Len() == 0 {
		return emitDocs(matched), nil
	}
	projected, err := q.rt.proj.Project(matched, projDoc)
	if err != nil {
		return nil, err
	}
	return emitDocs(projected), nil
}

// NewCursorFromSeq adapts a lazy [Document] sequence into a pull-based
// [domain.Cursor] for callers that want Next/Decode instead of
// range-over-func iteration.
func NewCursorFromSeq(seq iter.Seq2[Document, error], opts ...domain.CursorOption) (domain.Cursor, error) {
	docs, err := drainSeq(seq)
	if err != nil {
		return nil, err
	}
	return cursor.NewCursor(docs, opts...), nil
}
