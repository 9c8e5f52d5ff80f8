package catalog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robwalker/pagedb/internal/storage"
)

func newTempStore(t *testing.T) *storage.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pagedb-catalog-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	s := storage.Open(f)
	require.NoError(t, s.ExtendTo(0))
	return s
}

func writeTable(t *testing.T, store *storage.Store, slot int, name string, defPage, metaPage int32, cols []ColumnDef) {
	t.Helper()

	header, err := store.ReadPage(0)
	require.NoError(t, err)
	rec := header[slot*RecordSize : (slot+1)*RecordSize]
	EncodeHeaderFields(rec, name, defPage, metaPage)
	require.NoError(t, store.WritePage(0, header))

	require.NoError(t, store.ExtendTo(storage.PageNumber(defPage)))
	defPageBuf := make([]byte, storage.PageSize)
	for i, col := range cols {
		rec := EncodeDefinitionRecord(col)
		copy(defPageBuf[i*RecordSize:(i+1)*RecordSize], rec[:])
	}
	require.NoError(t, store.WritePage(storage.PageNumber(defPage), defPageBuf))

	require.NoError(t, store.ExtendTo(storage.PageNumber(metaPage)))
	metaBuf := make([]byte, storage.PageSize)
	require.NoError(t, store.WritePage(storage.PageNumber(metaPage), metaBuf))
}

func TestLoadParsesHeaderDefinitionAndMeta(t *testing.T) {
	store := newTempStore(t)
	cols := []ColumnDef{{Name: "a", Type: 1, Size: 4}, {Name: "b", Type: 2, Size: 8}}
	writeTable(t, store, 0, "widgets", 1, 2, cols)

	cat, inUse, err := Load(store)
	require.NoError(t, err)

	tbl, ok := cat.Get("widgets")
	require.True(t, ok)
	require.Equal(t, storage.PageNumber(1), tbl.DefPage)
	require.Equal(t, storage.PageNumber(2), tbl.MetaPage)
	require.Equal(t, 12, tbl.RowLen)
	require.Equal(t, cols, tbl.Columns)

	require.Contains(t, inUse, storage.PageNumber(0))
	require.Contains(t, inUse, storage.PageNumber(1))
	require.Contains(t, inUse, storage.PageNumber(2))
}

func TestLoadComputesAbsoluteDataPageFromRelativeMetaOffset(t *testing.T) {
	store := newTempStore(t)
	writeTable(t, store, 0, "t", 1, 2, []ColumnDef{{Name: "x", Type: 1, Size: 4}})

	metaPage, err := store.ReadPage(2)
	require.NoError(t, err)
	rec := EncodeMetaRecord(3) // relative offset 3 -> absolute page 5
	copy(metaPage[0:RecordSize], rec[:])
	require.NoError(t, store.WritePage(2, metaPage))
	require.NoError(t, store.ExtendTo(5))

	cat, inUse, err := Load(store)
	require.NoError(t, err)

	tbl, _ := cat.Get("t")
	require.Equal(t, []int32{3}, tbl.InitialDataOffsets)
	require.Contains(t, inUse, storage.PageNumber(5))
}

func TestFreeHeaderSlotSkipsOccupied(t *testing.T) {
	store := newTempStore(t)
	writeTable(t, store, 0, "t", 1, 2, []ColumnDef{{Name: "x", Type: 1, Size: 4}})

	cat, _, err := Load(store)
	require.NoError(t, err)
	require.Equal(t, 1, cat.FreeHeaderSlot())
}

func TestAddAndRemoveUpdateSlotTracking(t *testing.T) {
	cat := New()
	require.Equal(t, 0, cat.FreeHeaderSlot())

	cat.Add(&Table{Name: "t", HeaderSlot: 0})
	require.True(t, cat.Has("t"))
	require.Equal(t, 1, cat.FreeHeaderSlot())

	cat.Remove("t")
	require.False(t, cat.Has("t"))
	require.Equal(t, 0, cat.FreeHeaderSlot())
}
