package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinicius-lino-figueiredo/memql/domain"
)

func TestCompileBucket(t *testing.T) {
	spec := []domain.Document{
		M{"$bucket": M{
			"groupBy":    "$score",
			"boundaries": A{0, 50, 100},
			"default":    "other",
			"output":     M{"count": M{"$sum": 1}},
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	bucket, ok := stages[0].(*BucketStage)
	require.True(t, ok)
	require.Equal(t, A{0, 50, 100}, bucket.Boundaries)
	require.True(t, bucket.HasDefault)
	require.Equal(t, "other", bucket.Default)
	require.Len(t, bucket.Fields, 1)
	require.Equal(t, "$sum", bucket.Fields[0].Operator)
}

func TestCompileBucketAuto(t *testing.T) {
	spec := []domain.Document{
		M{"$bucketAuto": M{
			"groupBy": "$score",
			"buckets": 4,
			"output":  M{"count": M{"$sum": 1}},
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	auto, ok := stages[0].(*BucketAutoStage)
	require.True(t, ok)
	require.Equal(t, 4, auto.Buckets)
	require.Len(t, auto.Fields, 1)
}

func TestCompileLookupSimpleForm(t *testing.T) {
	spec := []domain.Document{
		M{"$lookup": M{
			"from":         "orders",
			"localField":   "_id",
			"foreignField": "customerId",
			"as":           "orders",
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	lk, ok := stages[0].(*LookupStage)
	require.True(t, ok)
	require.Equal(t, "orders", lk.From)
	require.Equal(t, "_id", lk.LocalField)
	require.Equal(t, "customerId", lk.ForeignField)
	require.Nil(t, lk.Pipeline)
}

func TestCompileLookupLetPipelineForm(t *testing.T) {
	spec := []domain.Document{
		M{"$lookup": M{
			"from": "orders",
			"let":  M{"id": "$_id"},
			"pipeline": A{
				M{"$addFields": M{"isMatch": M{"$eq": A{"$customerId", "$$id"}}}},
				M{"$match": M{"isMatch": true}},
			},
			"as": "orders",
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	lk, ok := stages[0].(*LookupStage)
	require.True(t, ok)
	require.Equal(t, "orders", lk.From)
	require.Equal(t, "$_id", lk.Let["id"])
	require.Len(t, lk.Pipeline, 2)
}

func TestCompileGraphLookup(t *testing.T) {
	spec := []domain.Document{
		M{"$graphLookup": M{
			"from":             "employees",
			"startWith":        "$reportsTo",
			"connectFromField": "reportsTo",
			"connectToField":   "_id",
			"as":               "chain",
			"maxDepth":         3,
			"depthField":       "depth",
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	gl, ok := stages[0].(*GraphLookupStage)
	require.True(t, ok)
	require.Equal(t, "employees", gl.From)
	require.True(t, gl.HasMaxDepth)
	require.Equal(t, 3, gl.MaxDepth)
	require.Equal(t, "depth", gl.DepthField)
}

func TestCompileSetWindowFields(t *testing.T) {
	spec := []domain.Document{
		M{"$setWindowFields": M{
			"partitionBy": "$store",
			"sortBy":      M{"day": 1},
			"output": M{
				"runningTotal": M{
					"$sum":   "$sales",
					"window": M{"documents": A{"unbounded", "current"}},
				},
			},
		}},
	}
	stages, err := Compile(spec)
	require.NoError(t, err)
	swf, ok := stages[0].(*SetWindowFieldsStage)
	require.True(t, ok)
	require.Len(t, swf.Fields, 1)
	require.Equal(t, "runningTotal", swf.Fields[0].Field)
	require.Equal(t, "$sum", swf.Fields[0].Operator)
	require.True(t, swf.Fields[0].Lower.Unbounded)
	require.False(t, swf.Fields[0].Upper.Unbounded)
	require.Equal(t, 0, swf.Fields[0].Upper.Offset)
}

func TestCompileSetWindowFieldsMissingOperator(t *testing.T) {
	spec := []domain.Document{
		M{"$setWindowFields": M{
			"output": M{"x": M{"window": M{"documents": A{"unbounded", "current"}}}},
		}},
	}
	_, err := Compile(spec)
	require.Error(t, err)
}
