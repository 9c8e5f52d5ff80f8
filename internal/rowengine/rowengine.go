// Package rowengine implements insert/select/update/delete against a
// table's Meta directory and data pages. Every operation walks the Meta
// directory fresh from disk rather than trusting a cached mirror, since
// the directory is the only authority on which data pages exist.
package rowengine

import (
	"bytes"

	"github.com/robwalker/pagedb/internal/alloc"
	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/storage"
)

// Condition is a byte-range equality predicate: a row matches if its
// [Lo, Hi) slice equals Value.
type Condition struct {
	Lo, Hi int
	Value  []byte
}

// FieldWrite is a partial byte-range overwrite applied by Update.
type FieldWrite struct {
	Lo, Hi int
	Value  []byte
}

func (c Condition) validate(rowLen int) error {
	if c.Lo < 0 || c.Hi < c.Lo || c.Hi > rowLen || c.Hi-c.Lo != len(c.Value) {
		return dberr.New("rowengine.condition", dberr.InvalidArgument)
	}
	return nil
}

func (w FieldWrite) validate(rowLen int) error {
	if w.Lo < 0 || w.Hi < w.Lo || w.Hi > rowLen || w.Hi-w.Lo != len(w.Value) {
		return dberr.New("rowengine.fieldWrite", dberr.InvalidArgument)
	}
	return nil
}

func matches(row []byte, conditions []Condition) bool {
	for _, c := range conditions {
		if !bytes.Equal(row[c.Lo:c.Hi], c.Value) {
			return false
		}
	}
	return true
}

func isEmptySlot(row []byte) bool {
	for _, b := range row {
		if b != 0 {
			return false
		}
	}
	return true
}

func slotsPerPage(rowLen int) int {
	return storage.PageSize / rowLen
}

// Insert walks the Meta directory in record order and writes row into
// the first free slot of the first data page that has room. A zero Meta
// record reached before such a page gets a newly allocated data page,
// even if a later Meta record points at a page with a free slot. row
// must be exactly the table's row width.
//
// Because an empty slot is indistinguishable from an all-zero row, an
// all-zero insert is indistinguishable from a tombstone to every later
// Select/Update/Delete; this is the wire format's documented restriction
// (spec.md §9), not an engine bug.
func Insert(store *storage.Store, allocator *alloc.Allocator, table *catalog.Table, row []byte) error {
	if len(row) != table.RowLen {
		return dberr.New("rowengine.Insert", dberr.InvalidArgument)
	}

	meta, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return err
	}
	perPage := slotsPerPage(table.RowLen)

	for slot := 0; slot < catalog.RecordsPerPage; slot++ {
		rel := catalog.DecodeMetaRecord(meta[slot*catalog.RecordSize : (slot+1)*catalog.RecordSize])
		if rel == 0 {
			return insertIntoNewPage(store, allocator, table, meta, slot, row)
		}
		dataPage := storage.PageNumber(int32(table.MetaPage) + rel)
		page, err := store.ReadPage(dataPage)
		if err != nil {
			return err
		}
		for i := 0; i < perPage; i++ {
			rowBuf := page[i*table.RowLen : (i+1)*table.RowLen]
			if isEmptySlot(rowBuf) {
				copy(rowBuf, row)
				if err := store.WritePage(dataPage, page); err != nil {
					return err
				}
				return store.Flush()
			}
		}
	}
	return dberr.New("rowengine.Insert", dberr.StorageFull)
}

func insertIntoNewPage(store *storage.Store, allocator *alloc.Allocator, table *catalog.Table, meta []byte, slot int, row []byte) error {
	newPage, err := allocator.Allocate()
	if err != nil {
		return err
	}
	if err := store.ExtendTo(newPage); err != nil {
		allocator.Release(newPage)
		return err
	}

	buf := make([]byte, storage.PageSize)
	copy(buf[0:table.RowLen], row)
	if err := store.WritePage(newPage, buf); err != nil {
		allocator.Release(newPage)
		return err
	}

	rel := int32(newPage) - int32(table.MetaPage)
	rec := catalog.EncodeMetaRecord(rel)
	copy(meta[slot*catalog.RecordSize:slot*catalog.RecordSize+4], rec[:4])
	if err := store.WriteAt(table.MetaPage, slot*catalog.RecordSize, rec[:4]); err != nil {
		allocator.Release(newPage)
		return err
	}
	return store.Flush()
}

// Select walks every non-zero Meta record, reads every row slot of the
// corresponding data page, and returns a copy of every row that matches
// every condition. With no conditions every occupied slot matches. An
// all-zero slot, including an all-zero row inserted by a caller, counts
// as empty and is never returned.
func Select(store *storage.Store, table *catalog.Table, conditions []Condition) ([][]byte, error) {
	for _, c := range conditions {
		if err := c.validate(table.RowLen); err != nil {
			return nil, err
		}
	}

	meta, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return nil, err
	}
	perPage := slotsPerPage(table.RowLen)

	var results [][]byte
	for slot := 0; slot < catalog.RecordsPerPage; slot++ {
		rel := catalog.DecodeMetaRecord(meta[slot*catalog.RecordSize : (slot+1)*catalog.RecordSize])
		if rel == 0 {
			continue
		}
		dataPage := storage.PageNumber(int32(table.MetaPage) + rel)
		page, err := store.ReadPage(dataPage)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perPage; i++ {
			rowBuf := page[i*table.RowLen : (i+1)*table.RowLen]
			if isEmptySlot(rowBuf) {
				continue
			}
			if matches(rowBuf, conditions) {
				cp := make([]byte, table.RowLen)
				copy(cp, rowBuf)
				results = append(results, cp)
			}
		}
	}
	return results, nil
}

// Update overwrites the given byte ranges of every row that matches
// every condition, returning the number of rows matched.
func Update(store *storage.Store, table *catalog.Table, conditions []Condition, writes []FieldWrite) (int, error) {
	for _, c := range conditions {
		if err := c.validate(table.RowLen); err != nil {
			return 0, err
		}
	}
	for _, w := range writes {
		if err := w.validate(table.RowLen); err != nil {
			return 0, err
		}
	}

	meta, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return 0, err
	}
	perPage := slotsPerPage(table.RowLen)
	matched := 0

	for slot := 0; slot < catalog.RecordsPerPage; slot++ {
		rel := catalog.DecodeMetaRecord(meta[slot*catalog.RecordSize : (slot+1)*catalog.RecordSize])
		if rel == 0 {
			continue
		}
		dataPage := storage.PageNumber(int32(table.MetaPage) + rel)
		page, err := store.ReadPage(dataPage)
		if err != nil {
			return 0, err
		}
		dirty := false
		for i := 0; i < perPage; i++ {
			rowBuf := page[i*table.RowLen : (i+1)*table.RowLen]
			if isEmptySlot(rowBuf) || !matches(rowBuf, conditions) {
				continue
			}
			matched++
			dirty = true
			for _, w := range writes {
				copy(rowBuf[w.Lo:w.Hi], w.Value)
			}
		}
		if dirty {
			if err := store.WritePage(dataPage, page); err != nil {
				return 0, err
			}
		}
	}

	if err := store.Flush(); err != nil {
		return 0, err
	}
	return matched, nil
}

// Delete zeroes every row slot that matches every condition and, for
// every data page that becomes wholly empty as a result, zeroes its Meta
// record and releases the page from the allocator. It returns the
// number of rows matched.
func Delete(store *storage.Store, allocator *alloc.Allocator, table *catalog.Table, conditions []Condition) (int, error) {
	for _, c := range conditions {
		if err := c.validate(table.RowLen); err != nil {
			return 0, err
		}
	}

	meta, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return 0, err
	}
	perPage := slotsPerPage(table.RowLen)
	matched := 0

	for slot := 0; slot < catalog.RecordsPerPage; slot++ {
		rel := catalog.DecodeMetaRecord(meta[slot*catalog.RecordSize : (slot+1)*catalog.RecordSize])
		if rel == 0 {
			continue
		}
		dataPage := storage.PageNumber(int32(table.MetaPage) + rel)
		page, err := store.ReadPage(dataPage)
		if err != nil {
			return 0, err
		}

		pageDirty := false
		allEmpty := true
		for i := 0; i < perPage; i++ {
			rowBuf := page[i*table.RowLen : (i+1)*table.RowLen]
			if isEmptySlot(rowBuf) {
				continue
			}
			if matches(rowBuf, conditions) {
				matched++
				for b := range rowBuf {
					rowBuf[b] = 0
				}
				pageDirty = true
				continue
			}
			allEmpty = false
		}

		if pageDirty {
			if err := store.WritePage(dataPage, page); err != nil {
				return 0, err
			}
		}
		if allEmpty {
			var zero [catalog.RecordSize]byte
			copy(meta[slot*catalog.RecordSize:(slot+1)*catalog.RecordSize], zero[:])
			if err := store.WriteAt(table.MetaPage, slot*catalog.RecordSize, zero[:]); err != nil {
				return 0, err
			}
			allocator.Release(dataPage)
		}
	}

	if err := store.Flush(); err != nil {
		return 0, err
	}
	return matched, nil
}
