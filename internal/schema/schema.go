// Package schema implements create-table and drop-table, mutating the
// catalog's Header/Definition/Meta directories and the page allocator
// together.
package schema

import (
	"github.com/robwalker/pagedb/internal/alloc"
	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/storage"
)

const (
	maxTableNameLen  = 23
	maxColumnNameLen = 28
	maxColumns       = catalog.RecordsPerPage
)

// CreateTable validates the table definition, allocates a Definition and
// Meta page, writes the three directory records, and registers the new
// table in cat.
func CreateTable(store *storage.Store, cat *catalog.Catalog, allocator *alloc.Allocator, name string, columns []catalog.ColumnDef) error {
	if len(name) < 1 || len(name) > maxTableNameLen {
		return dberr.New("schema.CreateTable", dberr.InvalidArgument)
	}
	if len(columns) > maxColumns {
		return dberr.New("schema.CreateTable", dberr.TooManyColumns)
	}
	if cat.Has(name) {
		return dberr.New("schema.CreateTable", dberr.TableExists)
	}
	if len(columns) == 0 {
		return dberr.New("schema.CreateTable", dberr.InvalidArgument)
	}
	rowLen := 0
	for _, col := range columns {
		if len(col.Name) < 1 {
			return dberr.New("schema.CreateTable", dberr.InvalidArgument)
		}
		if len(col.Name) > maxColumnNameLen {
			return dberr.New("schema.CreateTable", dberr.ColumnNameTooLong)
		}
		rowLen += int(col.Size)
	}
	if rowLen <= 0 || rowLen > storage.PageSize {
		return dberr.New("schema.CreateTable", dberr.ColumnTooBig)
	}

	slot := cat.FreeHeaderSlot()
	if slot == -1 {
		return dberr.New("schema.CreateTable", dberr.HeaderTableFull)
	}

	defPage, err := allocator.Allocate()
	if err != nil {
		return err
	}
	metaPage, err := allocator.AllocateAfter(defPage)
	if err != nil {
		allocator.Release(defPage)
		return err
	}

	if err := writeHeaderRecord(store, slot, name, defPage, metaPage); err != nil {
		return err
	}
	if err := writeDefinitionPage(store, defPage, columns); err != nil {
		return err
	}
	if err := writeEmptyMetaPage(store, metaPage); err != nil {
		return err
	}
	if err := store.Flush(); err != nil {
		return err
	}

	cat.Add(&catalog.Table{
		Name:       name,
		DefPage:    defPage,
		MetaPage:   metaPage,
		HeaderSlot: slot,
		RowLen:     rowLen,
		Columns:    columns,
	})
	return nil
}

// DropTable zeroes the table's Header record and releases its
// Definition, Meta and data pages from the allocator.
func DropTable(store *storage.Store, cat *catalog.Catalog, allocator *alloc.Allocator, name string) error {
	table, ok := cat.Get(name)
	if !ok {
		return dberr.New("schema.DropTable", dberr.TableNotFound)
	}

	var zero [catalog.RecordSize]byte
	if err := store.WriteAt(0, table.HeaderSlot*catalog.RecordSize, zero[:]); err != nil {
		return err
	}
	if err := store.Flush(); err != nil {
		return err
	}

	allocator.Release(table.DefPage)
	allocator.Release(table.MetaPage)

	// Re-read the Meta directory fresh rather than trusting the
	// in-memory mirror's InitialDataOffsets, which only reflects what
	// was on disk at Load time and would miss pages Insert allocated
	// since.
	metaPage, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return err
	}
	for i := 0; i < catalog.RecordsPerPage; i++ {
		rel := catalog.DecodeMetaRecord(metaPage[i*catalog.RecordSize : (i+1)*catalog.RecordSize])
		if rel == 0 {
			continue
		}
		abs := storage.PageNumber(int32(table.MetaPage) + rel)
		allocator.Release(abs)
	}

	cat.Remove(name)
	return nil
}

func writeHeaderRecord(store *storage.Store, slot int, name string, defPage, metaPage storage.PageNumber) error {
	var rec [catalog.RecordSize]byte
	catalog.EncodeHeaderFields(rec[:], name, int32(defPage), int32(metaPage))
	// Only the length+name and the two page-number fields are meaningful
	// here; the teacher-style format leaves [1+L:24) at whatever the
	// page already held, so we write the two sub-ranges separately
	// rather than the full record.
	l := len(name)
	if err := store.WriteAt(0, slot*catalog.RecordSize, rec[:1+l]); err != nil {
		return err
	}
	return store.WriteAt(0, slot*catalog.RecordSize+24, rec[24:32])
}

func writeDefinitionPage(store *storage.Store, defPage storage.PageNumber, columns []catalog.ColumnDef) error {
	if err := store.ExtendTo(defPage); err != nil {
		return err
	}
	buf := make([]byte, storage.PageSize)
	for i, col := range columns {
		rec := catalog.EncodeDefinitionRecord(col)
		copy(buf[i*catalog.RecordSize:(i+1)*catalog.RecordSize], rec[:])
	}
	return store.WritePage(defPage, buf)
}

func writeEmptyMetaPage(store *storage.Store, metaPage storage.PageNumber) error {
	if err := store.ExtendTo(metaPage); err != nil {
		return err
	}
	return store.WritePage(metaPage, make([]byte, storage.PageSize))
}
