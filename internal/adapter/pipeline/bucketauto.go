package pipeline

import (
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/accumulator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
)

// BucketAutoStage implements $bucketAuto: documents are sorted by GroupBy
// and split into Buckets roughly equal-sized chunks. A chunk boundary never
// falls between two documents with equal keys — the chunk instead extends
// until the next key differs, MongoDB's documented tie-breaking behavior.
type BucketAutoStage struct {
	GroupBy any
	Buckets int
	Fields  []GroupSpec
}

// Run implements [domain.Stage].
func (s *BucketAutoStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}
	if s.Buckets <= 0 {
		return fail(&domain.ErrMalformedSpec{Reason: "$bucketAuto requires a positive bucket count"})
	}

	type keyedDoc struct {
		key any
		doc domain.Document
	}
	keyed := make([]keyedDoc, len(docs))
	for i, doc := range docs {
		frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
		v, _, err := rt.Evaluator.Compute(doc, s.GroupBy, frame)
		if err != nil {
			return fail(err)
		}
		keyed[i] = keyedDoc{key: v, doc: doc}
	}

	var sortErr error
	slices.SortStableFunc(keyed, func(a, b keyedDoc) int {
		if sortErr != nil {
			return 0
		}
		c, err := rt.Comparer.Compare(a.key, b.key)
		if err != nil {
			sortErr = err
			return 0
		}
		return c
	})
	if sortErr != nil {
		return fail(sortErr)
	}

	n := len(keyed)
	if n == 0 {
		return emit(nil)
	}
	buckets := min(s.Buckets, n)
	target := n / buckets
	if n%buckets != 0 {
		target++
	}

	norm := canon.NewNormalizer(rt.DocFac)
	accFactories := accumulator.Registry(rt.Comparer, norm, rt.Hasher)

	var res []domain.Document
	i := 0
	for i < n {
		end := min(i+target, n)
		for end < n {
			c, err := rt.Comparer.Compare(keyed[end-1].key, keyed[end].key)
			if err != nil {
				return fail(err)
			}
			if c != 0 {
				break
			}
			end++
		}

		accs := make([]domain.Accumulator, len(s.Fields))
		for fi, spec := range s.Fields {
			factory, ok := accFactories[spec.Operator]
			if !ok {
				return fail(&domain.ErrUnknownOperator{Name: spec.Operator})
			}
			accs[fi] = factory()
		}
		for _, kd := range keyed[i:end] {
			frame := &domain.Frame{Root: kd.doc, Current: kd.doc, Opts: rt.Opts}
			for fi, spec := range s.Fields {
				val, defined, err := rt.Evaluator.Compute(kd.doc, spec.Expr, frame)
				if err != nil {
					return fail(err)
				}
				if err := accs[fi].Accumulate(val, defined); err != nil {
					return fail(err)
				}
			}
		}

		out, err := rt.DocFac(nil)
		if err != nil {
			return fail(err)
		}
		id, err := rt.DocFac(nil)
		if err != nil {
			return fail(err)
		}
		id.Set("min", keyed[i].key)
		if end < n {
			id.Set("max", keyed[end].key)
		} else {
			id.Set("max", keyed[end-1].key)
		}
		out.Set("_id", id)
		for fi, spec := range s.Fields {
			val, err := accs[fi].Finish()
			if err != nil {
				return fail(err)
			}
			out.Set(spec.Field, val)
		}
		res = append(res, out)
		i = end
	}
	return emit(res)
}
