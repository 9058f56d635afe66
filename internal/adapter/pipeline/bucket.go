package pipeline

import (
	"iter"

	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/accumulator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/canon"
)

// BucketStage implements $bucket: documents are grouped into fixed,
// caller-specified boundaries instead of $group's arbitrary key equality.
// Boundaries define len(Boundaries)-1 half-open buckets
// [Boundaries[i], Boundaries[i+1]); values outside every bucket fall into
// the default bucket, if any, else the stage errors.
type BucketStage struct {
	GroupBy    any
	Boundaries []any
	Default    any
	HasDefault bool
	Fields     []GroupSpec
}

// Run implements [domain.Stage].
func (s *BucketStage) Run(upstream iter.Seq2[domain.Document, error], rt *domain.Runtime) iter.Seq2[domain.Document, error] {
	docs, err := drain(upstream)
	if err != nil {
		return fail(err)
	}
	if len(s.Boundaries) < 2 {
		return fail(&domain.ErrMalformedSpec{Reason: "$bucket requires at least 2 boundaries"})
	}

	norm := canon.NewNormalizer(rt.DocFac)
	accFactories := accumulator.Registry(rt.Comparer, norm, rt.Hasher)

	newAccs := func() ([]domain.Accumulator, error) {
		accs := make([]domain.Accumulator, len(s.Fields))
		for i, spec := range s.Fields {
			factory, ok := accFactories[spec.Operator]
			if !ok {
				return nil, &domain.ErrUnknownOperator{Name: spec.Operator}
			}
			accs[i] = factory()
		}
		return accs, nil
	}

	numBuckets := len(s.Boundaries) - 1
	accsByBucket := make([][]domain.Accumulator, numBuckets)
	for i := range accsByBucket {
		accsByBucket[i], err = newAccs()
		if err != nil {
			return fail(err)
		}
	}
	var defaultAccs []domain.Accumulator
	if s.HasDefault {
		if defaultAccs, err = newAccs(); err != nil {
			return fail(err)
		}
	}

	for _, doc := range docs {
		frame := &domain.Frame{Root: doc, Current: doc, Opts: rt.Opts}
		keyVal, _, err := rt.Evaluator.Compute(doc, s.GroupBy, frame)
		if err != nil {
			return fail(err)
		}

		bucketIdx := -1
		for i := 0; i < numBuckets; i++ {
			lo, err := rt.Comparer.Compare(keyVal, s.Boundaries[i])
			if err != nil {
				return fail(err)
			}
			hi, err := rt.Comparer.Compare(keyVal, s.Boundaries[i+1])
			if err != nil {
				return fail(err)
			}
			if lo >= 0 && hi < 0 {
				bucketIdx = i
				break
			}
		}

		var accs []domain.Accumulator
		switch {
		case bucketIdx >= 0:
			accs = accsByBucket[bucketIdx]
		case s.HasDefault:
			accs = defaultAccs
		default:
			return fail(&domain.ErrMalformedSpec{Reason: "$bucket: value outside boundaries and no default specified"})
		}
		for i, spec := range s.Fields {
			val, defined, err := rt.Evaluator.Compute(doc, spec.Expr, frame)
			if err != nil {
				return fail(err)
			}
			if err := accs[i].Accumulate(val, defined); err != nil {
				return fail(err)
			}
		}
	}

	finish := func(id any, accs []domain.Accumulator) (domain.Document, error) {
		out, err := rt.DocFac(nil)
		if err != nil {
			return nil, err
		}
		out.Set("_id", id)
		for i, spec := range s.Fields {
			val, err := accs[i].Finish()
			if err != nil {
				return nil, err
			}
			out.Set(spec.Field, val)
		}
		return out, nil
	}

	var res []domain.Document
	for i := 0; i < numBuckets; i++ {
		out, err := finish(s.Boundaries[i], accsByBucket[i])
		if err != nil {
			return fail(err)
		}
		res = append(res, out)
	}
	if s.HasDefault {
		out, err := finish(s.Default, defaultAccs)
		if err != nil {
			return fail(err)
		}
		res = append(res, out)
	}
	return emit(res)
}
