package memql

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinicius-lino-figueiredo/memql/domain"
	"github.com/vinicius-lino-figueiredo/memql/internal/adapter/data"
)

func TestQueryFindAndRemove(t *testing.T) {
	docs := []Document{
		M{"_id": 1, "name": "a", "age": 10},
		M{"_id": 2, "name": "b", "age": 20},
		M{"_id": 3, "name": "c", "age": 30},
	}
	q, err := NewQuery(M{"age": M{"$gte": 20}})
	require.NoError(t, err)

	matched, err := drainSeq(q.Find(docs))
	require.NoError(t, err)
	require.Len(t, matched, 2)

	ok, err := q.Test(M{"age": 25})
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := drainSeq(q.Remove(docs))
	require.NoError(t, err)
	require.Equal(t, matched, removed)
}

func TestAggregatorPipeline(t *testing.T) {
	docs := []Document{
		M{"store": "a", "amount": 10},
		M{"store": "a", "amount": 15},
		M{"store": "b", "amount": 7},
	}
	agg, err := NewAggregator([]any{
		M{"$group": M{"_id": "$store", "total": M{"$sum": "$amount"}}},
		M{"$sort": M{"_id": 1}},
	})
	require.NoError(t, err)

	out, err := drainSeq(agg.Run(docs))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].Get("_id"))
	require.Equal(t, float64(25), out[0].Get("total"))
	require.Equal(t, "b", out[1].Get("_id"))
	require.Equal(t, float64(7), out[1].Get("total"))
}

func TestTopLevelFindWithProjection(t *testing.T) {
	docs := []Document{
		M{"_id": 1, "name": "a", "age": 10},
		M{"_id": 2, "name": "b", "age": 20},
	}
	seq, err := Find(docs, M{"age": M{"$gt": 15}}, M{"name": 1, "_id": 0})
	require.NoError(t, err)
	out, err := drainSeq(seq)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, M{"name": "b"}, data.ToM(out[0]))
}

func TestTopLevelFindWithProjectionPreservesFieldOrder(t *testing.T) {
	docs := []Document{
		M{"_id": 1, "name": "a", "age": 10, "city": "x"},
	}
	spec, err := data.NewDocument(`{"city": 1, "name": 1, "age": 1, "_id": 0}`)
	require.NoError(t, err)
	seq, err := Find(docs, M{"_id": 1}, spec)
	require.NoError(t, err)
	out, err := drainSeq(seq)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []string{"city", "name", "age"}, slices.Collect(out[0].Keys()))
}

func TestAggregatorSortWithCollationInterleavesCaseVariants(t *testing.T) {
	docs := []Document{
		M{"letter": "B"},
		M{"letter": "a"},
		M{"letter": "A"},
		M{"letter": "b"},
	}
	agg, err := NewAggregator([]any{
		M{"$sort": M{"letter": 1}},
	}, WithCollation(domain.CollationDescriptor{Locale: "en", Strength: 1}))
	require.NoError(t, err)

	out, err := drainSeq(agg.Run(docs))
	require.NoError(t, err)
	require.Len(t, out, 4)

	letters := make([]string, len(out))
	for i, d := range out {
		letters[i] = d.Get("letter").(string)
	}
	require.ElementsMatch(t, []string{"A", "a"}, letters[0:2])
	require.ElementsMatch(t, []string{"B", "b"}, letters[2:4])
}

func TestTopLevelAggregate(t *testing.T) {
	docs := []Document{M{"v": 1}, M{"v": 2}, M{"v": 3}}
	seq, err := Aggregate(docs, []any{
		M{"$bucketAuto": M{"groupBy": "$v", "buckets": 2}},
	})
	require.NoError(t, err)
	out, err := drainSeq(seq)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestNewCursorFromSeq(t *testing.T) {
	docs := []Document{M{"a": 1}, M{"a": 2}}
	cur, err := NewCursorFromSeq(emitDocs(docs))
	require.NoError(t, err)
	defer cur.Close()

	var got []Document
	for cur.Next() {
		var doc Document
		require.NoError(t, cur.Decode(&doc))
		got = append(got, doc)
	}
	require.NoError(t, cur.Err())
	require.Len(t, got, 2)
}
