package schema

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robwalker/pagedb/internal/alloc"
	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/storage"
)

func newEmptyStore(t *testing.T) (*storage.Store, *catalog.Catalog, *alloc.Allocator) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pagedb-schema-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Truncate(storage.PageSize))

	store := storage.Open(f)
	cat, inUse, err := catalog.Load(store)
	require.NoError(t, err)
	allocator := alloc.New(inUse)
	return store, cat, allocator
}

func TestCreateTableThenReopenRoundTrips(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	cols := []catalog.ColumnDef{{Name: "a", Type: 1, Size: 4}, {Name: "b", Type: 2, Size: 8}}
	require.NoError(t, CreateTable(store, cat, allocator, "widgets", cols))

	reloaded, _, err := catalog.Load(store)
	require.NoError(t, err)
	tbl, ok := reloaded.Get("widgets")
	require.True(t, ok)
	require.Equal(t, 12, tbl.RowLen)
	require.Equal(t, cols, tbl.Columns)
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	cols := []catalog.ColumnDef{{Name: "a", Type: 1, Size: 4}}
	require.NoError(t, CreateTable(store, cat, allocator, "t", cols))
	err := CreateTable(store, cat, allocator, "t", cols)
	require.True(t, dberr.Is(err, dberr.TableExists))
}

func TestCreateTableColumnTooBigFails(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	err := CreateTable(store, cat, allocator, "t2", []catalog.ColumnDef{{Name: "x", Type: 1, Size: 5000}})
	require.True(t, dberr.Is(err, dberr.ColumnTooBig))
}

func TestCreateTable129thFailsWithHeaderTableFull(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	cols := []catalog.ColumnDef{{Name: "a", Type: 1, Size: 4}}
	for i := 0; i < catalog.RecordsPerPage; i++ {
		require.NoError(t, CreateTable(store, cat, allocator, fmt.Sprintf("t%d", i), cols))
	}
	err := CreateTable(store, cat, allocator, "overflow", cols)
	require.True(t, dberr.Is(err, dberr.HeaderTableFull))
}

func TestDropUnknownTableFails(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	err := DropTable(store, cat, allocator, "nope")
	require.True(t, dberr.Is(err, dberr.TableNotFound))
}

func TestDropReleasesDefinitionAndMetaPages(t *testing.T) {
	store, cat, allocator := newEmptyStore(t)
	cols := []catalog.ColumnDef{{Name: "a", Type: 1, Size: 4}}
	require.NoError(t, CreateTable(store, cat, allocator, "t", cols))
	tbl, _ := cat.Get("t")

	require.True(t, allocator.InUse(tbl.DefPage))
	require.True(t, allocator.InUse(tbl.MetaPage))

	require.NoError(t, DropTable(store, cat, allocator, "t"))

	require.False(t, allocator.InUse(tbl.DefPage))
	require.False(t, allocator.InUse(tbl.MetaPage))
	require.False(t, cat.Has("t"))
}
