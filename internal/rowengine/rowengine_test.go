package rowengine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robwalker/pagedb/internal/alloc"
	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/schema"
	"github.com/robwalker/pagedb/internal/storage"
)

func newTestTable(t *testing.T, rowLen int) (*storage.Store, *alloc.Allocator, *catalog.Catalog, *catalog.Table) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pagedb-rowengine-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Truncate(storage.PageSize))

	store := storage.Open(f)
	cat, inUse, err := catalog.Load(store)
	require.NoError(t, err)
	allocator := alloc.New(inUse)

	require.NoError(t, schema.CreateTable(store, cat, allocator, "t", []catalog.ColumnDef{
		{Name: "v", Type: 1, Size: uint16(rowLen)},
	}))
	table, ok := cat.Get("t")
	require.True(t, ok)
	return store, allocator, cat, table
}

func TestInsertSelectRoundTrip(t *testing.T) {
	store, allocator, _, table := newTestTable(t, 4)

	require.NoError(t, Insert(store, allocator, table, []byte{0, 0, 0, 1}))
	rows, err := Select(store, table, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []byte{0, 0, 0, 1}, rows[0])
}

func TestInsertWrongLengthFails(t *testing.T) {
	store, allocator, _, table := newTestTable(t, 4)
	err := Insert(store, allocator, table, []byte{1, 2, 3})
	require.True(t, dberr.Is(err, dberr.InvalidArgument))
}

func TestInsertFillsPageThenAllocatesNext(t *testing.T) {
	store, allocator, _, table := newTestTable(t, storage.PageSize) // 1 row per page
	row1 := make([]byte, storage.PageSize)
	row1[0] = 1
	row2 := make([]byte, storage.PageSize)
	row2[0] = 2

	require.NoError(t, Insert(store, allocator, table, row1))
	require.NoError(t, Insert(store, allocator, table, row2))

	rows, err := Select(store, table, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestSelectPredicateSelectivity(t *testing.T) {
	store, allocator, _, table := newTestTable(t, 4)
	require.NoError(t, Insert(store, allocator, table, []byte{0, 0, 0, 9}))

	matching := []Condition{{Lo: 0, Hi: 4, Value: []byte{0, 0, 0, 9}}}
	rows, err := Select(store, table, matching)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	nonMatching := []Condition{{Lo: 0, Hi: 4, Value: []byte{0, 0, 0, 1}}}
	rows, err = Select(store, table, nonMatching)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestUpdateCountAndEffect(t *testing.T) {
	store, allocator, _, table := newTestTable(t, 4)
	require.NoError(t, Insert(store, allocator, table, []byte{0, 0, 0, 1}))

	n, err := Update(store, table,
		[]Condition{{Lo: 0, Hi: 4, Value: []byte{0, 0, 0, 1}}},
		[]FieldWrite{{Lo: 0, Hi: 4, Value: []byte{0, 0, 0, 2}}},
	)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := Select(store, table, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 2}, rows[0])
}

func TestDeleteReleasesWhollyEmptyPage(t *testing.T) {
	store, allocator, _, table := newTestTable(t, 4)
	require.NoError(t, Insert(store, allocator, table, []byte{0, 0, 0, 2}))

	meta, err := store.ReadPage(table.MetaPage)
	require.NoError(t, err)
	rel := catalog.DecodeMetaRecord(meta[:catalog.RecordSize])
	dataPage := storage.PageNumber(int32(table.MetaPage) + rel)
	require.True(t, allocator.InUse(dataPage))

	n, err := Delete(store, allocator, table, []Condition{{Lo: 0, Hi: 4, Value: []byte{0, 0, 0, 2}}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, allocator.InUse(dataPage))

	rows, err := Select(store, table, nil)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestConditionOutOfRangeIsInvalidArgument(t *testing.T) {
	store, _, _, table := newTestTable(t, 4)
	_, err := Select(store, table, []Condition{{Lo: 0, Hi: 5, Value: []byte{0, 0, 0, 0, 0}}})
	require.True(t, dberr.Is(err, dberr.InvalidArgument))
}
