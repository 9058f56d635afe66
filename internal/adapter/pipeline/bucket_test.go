package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/expr"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/operators"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/projector"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/timegetter"
)

type M = data.M
type A = []any

func testRuntime() *domain.Runtime {
	docFac := data.NewDocument
	fn := fieldnavigator.NewFieldNavigator(docFac)
	ops := operators.NewRegistry(nil)
	ev := expr.NewEvaluator(ops, fn, timegetter.NewTimeGetter())
	cmp := comparer.NewComparer()
	m := matcher.NewMatcher(
		domain.WithMatcherDocumentFactory(docFac),
		domain.WithMatcherComparer(cmp),
		domain.WithMatcherFieldNavigator(fn),
		domain.WithMatcherEvaluator(ev),
	)
	proj := projector.NewProjector(
		domain.WithProjectorDocumentFactory(docFac),
		domain.WithProjectorFieldNavigator(fn),
		domain.WithProjectorEvaluator(ev),
		domain.WithProjectorMatcher(m),
	)
	return &domain.Runtime{
		DocFac:         docFac,
		Comparer:       cmp,
		FieldNavigator: fn,
		Matcher:        m,
		Projector:      proj,
		Evaluator:      ev,
		Operators:      ops,
		Hasher:         hasher.NewHasher(),
		Opts:           &domain.EngineOptions{IDKey: "_id"},
	}
}

func collect(t *testing.T, seq func(func(domain.Document, error) bool)) []domain.Document {
	var out []domain.Document
	for doc, err := range seq {
		require.NoError(t, err)
		out = append(out, doc)
	}
	return out
}

func TestBucketStage(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{
		M{"score": 12}, M{"score": 25}, M{"score": 55}, M{"score": 95},
	}
	stage := &BucketStage{
		GroupBy:    "$score",
		Boundaries: A{0, 20, 40, 60, 100},
		Fields:     []GroupSpec{{Field: "count", Operator: "$sum", Expr: 1}},
	}
	out := collect(t, stage.Run(emit(docs), rt))
	require.Len(t, out, 4)
	require.Equal(t, 0, out[0].Get("_id"))
	require.Equal(t, float64(1), out[0].Get("count"))
	require.Equal(t, 20, out[1].Get("_id"))
	require.Equal(t, float64(1), out[1].Get("count"))
	require.Equal(t, 60, out[3].Get("_id"))
	require.Equal(t, float64(1), out[3].Get("count"))
}

func TestBucketStageDefault(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{M{"score": -5}, M{"score": 10}}
	stage := &BucketStage{
		GroupBy:    "$score",
		Boundaries: A{0, 20},
		Default:    "other",
		HasDefault: true,
		Fields:     []GroupSpec{{Field: "count", Operator: "$sum", Expr: 1}},
	}
	out := collect(t, stage.Run(emit(docs), rt))
	require.Len(t, out, 2)
	require.Equal(t, "other", out[1].Get("_id"))
	require.Equal(t, float64(1), out[1].Get("count"))
}

func TestBucketStageNoDefaultErrors(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{M{"score": -5}}
	stage := &BucketStage{GroupBy: "$score", Boundaries: A{0, 20}}
	var sawErr bool
	for _, err := range stage.Run(emit(docs), rt) {
		if err != nil {
			sawErr = true
		}
	}
	require.True(t, sawErr)
}

func TestBucketAutoStage(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{
		M{"v": 1}, M{"v": 2}, M{"v": 3}, M{"v": 4}, M{"v": 5}, M{"v": 6},
	}
	stage := &BucketAutoStage{
		GroupBy: "$v",
		Buckets: 3,
		Fields:  []GroupSpec{{Field: "count", Operator: "$sum", Expr: 1}},
	}
	out := collect(t, stage.Run(emit(docs), rt))
	require.Len(t, out, 3)
	total := 0
	for _, doc := range out {
		total += int(doc.Get("count").(float64))
	}
	require.Equal(t, 6, total)
}

func TestBucketAutoStageTieBreak(t *testing.T) {
	rt := testRuntime()
	docs := []domain.Document{
		M{"v": 1}, M{"v": 1}, M{"v": 1}, M{"v": 2},
	}
	stage := &BucketAutoStage{
		GroupBy: "$v",
		Buckets: 2,
		Fields:  []GroupSpec{{Field: "count", Operator: "$sum", Expr: 1}},
	}
	out := collect(t, stage.Run(emit(docs), rt))
	// all three v=1 docs must land in the same bucket despite a target
	// chunk size of 2.
	first := out[0].Get("count").(float64)
	require.Equal(t, float64(3), first)
}
