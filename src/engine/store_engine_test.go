package engine

import (
	"testing"

	"clipdash/src/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSchema() CollectionSchema {
	return CollectionSchema{
		KeyPath:       "id",
		AutoIncrement: true,
		Indexes: []SecondaryIndex{
			{Name: "by_type", KeyPath: "type"},
			{Name: "by_sku", KeyPath: "sku", Unique: true},
		},
	}
}

func newTestStore(t *testing.T) *StoreEngine {
	t.Helper()

	store, err := OpenStoreInMemory("test-db", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.Materialize(map[string]CollectionSchema{"items": testSchema()}, 1)
	require.NoError(t, err)
	return store
}

func TestInsertStampsTimestamps(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Insert("items", testSchema(), Record{"type": "text", "content": "hello"})
	require.NoError(t, err)

	created, ok := stored[FieldCreated].(string)
	require.True(t, ok)
	modified, ok := stored[FieldModified].(string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, modified, created)
	assert.Equal(t, "hello", stored["content"])

	fetched, err := store.Get("items", stored["id"])
	require.NoError(t, err)
	assert.Equal(t, "hello", fetched["content"])
	assert.Equal(t, created, fetched[FieldCreated])
}

func TestInsertAssignsSequentialKeys(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Insert("items", testSchema(), Record{"type": "text"})
	require.NoError(t, err)
	second, err := store.Insert("items", testSchema(), Record{"type": "text"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, first["id"])
	assert.EqualValues(t, 2, second["id"])
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	store := newTestStore(t)
	schema := CollectionSchema{KeyPath: "id"}
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"manual": schema}, 1))

	_, err := store.Insert("manual", schema, Record{"id": "a"})
	require.NoError(t, err)
	_, err = store.Insert("manual", schema, Record{"id": "a"})
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	// Missing key on a non-sequential collection is a validation error
	_, err = store.Insert("manual", schema, Record{"content": "x"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

// Negative integer keys must stay reachable by lookup and come back from
// key-order scans in numeric order.
func TestNegativeIntegerKeysOrder(t *testing.T) {
	store := newTestStore(t)
	schema := CollectionSchema{KeyPath: "rank"}
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"ranked": schema}, 1))

	for _, rank := range []int{3, -5, 0, -1} {
		_, err := store.Insert("ranked", schema, Record{"rank": rank})
		require.NoError(t, err)
	}

	records, err := store.DumpCollection("ranked")
	require.NoError(t, err)
	require.Len(t, records, 4)

	order := make([]int, 0, len(records))
	for _, rec := range records {
		order = append(order, int(rec["rank"].(float64)))
	}
	assert.Equal(t, []int{-5, -1, 0, 3}, order)

	fetched, err := store.Get("ranked", -5)
	require.NoError(t, err)
	assert.EqualValues(t, -5, fetched["rank"])
}

func TestInsertBatchAllOrNothing(t *testing.T) {
	store := newTestStore(t)

	batch := make([]Record, 0, 11)
	for i := 0; i < 10; i++ {
		batch = append(batch, Record{"type": "text", "sku": testSKU(i)})
	}
	// Duplicate sku violates the unique index partway through the batch
	batch = append(batch, Record{"type": "text", "sku": testSKU(0)})

	_, err := store.InsertBatch("items", testSchema(), batch)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	count, err := store.CountCollection("items")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func testSKU(i int) string {
	return string(rune('a' + i))
}

func TestValidateRecordRejectsUnsupportedValues(t *testing.T) {
	schema := testSchema()

	require.NoError(t, schema.ValidateRecord(Record{"type": "text", "count": 3, "flag": true}))

	err := schema.ValidateRecord(Record{"bad": make(chan int)})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestUniqueIndexConflict(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert("items", testSchema(), Record{"type": "text", "sku": "x"})
	require.NoError(t, err)
	_, err = store.Insert("items", testSchema(), Record{"type": "text", "sku": "x"})
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}

func TestUpdateMergesPatch(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Insert("items", testSchema(), Record{"type": "text", "content": "old"})
	require.NoError(t, err)

	updated, err := store.Update("items", testSchema(), stored["id"], Record{"content": "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated["content"])
	assert.Equal(t, "text", updated["type"])
	assert.Equal(t, stored[FieldCreated], updated[FieldCreated])
	assert.GreaterOrEqual(t, updated[FieldModified].(string), stored[FieldModified].(string))

	// Key field changes are rejected
	_, err = store.Update("items", testSchema(), stored["id"], Record{"id": 99})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	// Unknown record is not found
	_, err = store.Update("items", testSchema(), 404, Record{"content": "x"})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestUpdateRewritesIndexEntries(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Insert("items", testSchema(), Record{"type": "text"})
	require.NoError(t, err)
	_, err = store.Update("items", testSchema(), stored["id"], Record{"type": "image"})
	require.NoError(t, err)

	result, err := store.Scan("items", testSchema(), ReadOptions{IndexName: "by_type", IndexValue: "text"})
	require.NoError(t, err)
	assert.Empty(t, result.Data)

	result, err = store.Scan("items", testSchema(), ReadOptions{IndexName: "by_type", IndexValue: "image"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Insert("items", testSchema(), Record{"type": "text"})
	require.NoError(t, err)

	require.NoError(t, store.Delete("items", testSchema(), stored["id"]))
	require.NoError(t, store.Delete("items", testSchema(), stored["id"]))
	require.NoError(t, store.Delete("items", testSchema(), 12345))

	count, err := store.CountCollection("items")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestScanPaginationAndFilter(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		kind := "text"
		if i%2 == 0 {
			kind = "image"
		}
		_, err := store.Insert("items", testSchema(), Record{"type": kind})
		require.NoError(t, err)
	}

	result, err := store.Scan("items", testSchema(), ReadOptions{
		Limit:  3,
		Filter: func(rec Record) bool { return rec["type"] == "text" },
	})
	require.NoError(t, err)
	assert.Len(t, result.Data, 3)
	assert.Equal(t, 5, result.Total)
	assert.True(t, result.HasMore)

	result, err = store.Scan("items", testSchema(), ReadOptions{Limit: 3, Offset: 3,
		Filter: func(rec Record) bool { return rec["type"] == "text" }})
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)
	assert.False(t, result.HasMore)
}

// Sorting applies only to the page that was captured, not the whole
// collection. The first page in key order is 30/10/20, which sorts to
// 10/20/30 even though 5 exists later in the collection.
func TestScanSortsCapturedWindowOnly(t *testing.T) {
	store := newTestStore(t)

	for _, rank := range []int{30, 10, 20, 5} {
		_, err := store.Insert("items", testSchema(), Record{"type": "text", "rank": rank})
		require.NoError(t, err)
	}

	result, err := store.Scan("items", testSchema(), ReadOptions{
		Limit:     3,
		SortBy:    "rank",
		SortOrder: SortAscending,
	})
	require.NoError(t, err)
	require.Len(t, result.Data, 3)
	assert.EqualValues(t, 10, result.Data[0]["rank"])
	assert.EqualValues(t, 20, result.Data[1]["rank"])
	assert.EqualValues(t, 30, result.Data[2]["rank"])
}

func TestScanUnknownIndex(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Scan("items", testSchema(), ReadOptions{IndexName: "nope"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestClearKeepsKeyGenerator(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.Insert("items", testSchema(), Record{"type": "text"})
		require.NoError(t, err)
	}

	removed, err := store.Clear("items")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	next, err := store.Insert("items", testSchema(), Record{"type": "text"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, next["id"])
}

func TestMaterializeBackfillsNewIndex(t *testing.T) {
	store, err := OpenStoreInMemory("evolve-db", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v1 := CollectionSchema{KeyPath: "id", AutoIncrement: true}
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"items": v1}, 1))

	_, err = store.Insert("items", v1, Record{"type": "text"})
	require.NoError(t, err)
	_, err = store.Insert("items", v1, Record{"type": "image"})
	require.NoError(t, err)

	v2 := v1
	v2.Indexes = []SecondaryIndex{{Name: "by_type", KeyPath: "type"}}
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"items": v2}, 2))

	result, err := store.Scan("items", v2, ReadOptions{IndexName: "by_type", IndexValue: "text"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)

	// Re-running the same version is a no-op
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"items": v2}, 2))
}

func TestMultiEntryIndex(t *testing.T) {
	store, err := OpenStoreInMemory("tags-db", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	schema := CollectionSchema{
		KeyPath:       "id",
		AutoIncrement: true,
		Indexes:       []SecondaryIndex{{Name: "by_tag", KeyPath: "tags", MultiEntry: true}},
	}
	require.NoError(t, store.Materialize(map[string]CollectionSchema{"notes": schema}, 1))

	_, err = store.Insert("notes", schema, Record{"tags": []interface{}{"go", "db"}})
	require.NoError(t, err)
	_, err = store.Insert("notes", schema, Record{"tags": []interface{}{"go"}})
	require.NoError(t, err)

	result, err := store.Scan("notes", schema, ReadOptions{IndexName: "by_tag", IndexValue: "go"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)

	result, err = store.Scan("notes", schema, ReadOptions{IndexName: "by_tag", IndexValue: "db"})
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)
}
