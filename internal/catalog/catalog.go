// Package catalog is the pure in-memory representation of the Header,
// Definition and Meta directories that together describe which tables
// exist in a pagedb file, where their rows live, and how wide a row is.
// The directory record codecs never touch a *storage.Store; Load is the
// one place that bridges bytes-on-disk to the in-memory mirror.
package catalog

import (
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/storage"
)

// Table is the in-memory mirror of one table's catalog entries: the
// Definition and Meta page numbers, the row width they imply, the
// Header directory slot the table occupies, and the relative data-page
// offsets observed in the Meta directory at load time.
type Table struct {
	Name               string
	DefPage            storage.PageNumber
	MetaPage           storage.PageNumber
	HeaderSlot         int
	RowLen             int
	Columns            []ColumnDef
	InitialDataOffsets []int32 // relative offsets, as recorded in the Meta directory at Load time
}

// Catalog holds the parsed Header/Definition/Meta directories for every
// table known to an open handle.
type Catalog struct {
	tables     map[string]*Table
	slotUsed   [RecordsPerPage]bool
	headerPage storage.PageNumber
}

// New returns an empty catalog, as created for a brand-new database file.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Load parses the Header directory on page 0, then for each named table
// its Definition and Meta directories, returning the catalog plus the
// full set of absolute page numbers currently in use (always including
// page 0).
func Load(store *storage.Store) (*Catalog, map[storage.PageNumber]struct{}, error) {
	cat := New()
	inUse := map[storage.PageNumber]struct{}{0: {}}

	header, err := store.ReadPage(0)
	if err != nil {
		return nil, nil, err
	}

	for slot := 0; slot < RecordsPerPage; slot++ {
		rec := DecodeHeaderRecord(header[slot*RecordSize : (slot+1)*RecordSize])
		if rec.nameLen == 0 {
			continue
		}
		if int(rec.nameLen) > maxTableNameLen {
			return nil, nil, dberr.New("catalog.Load", dberr.CorruptData)
		}
		if rec.defPage < 0 || rec.metaPage < 0 {
			return nil, nil, dberr.New("catalog.Load", dberr.CorruptData)
		}
		table := &Table{
			Name:       rec.name,
			DefPage:    storage.PageNumber(rec.defPage),
			MetaPage:   storage.PageNumber(rec.metaPage),
			HeaderSlot: slot,
		}
		cat.slotUsed[slot] = true
		inUse[table.DefPage] = struct{}{}
		inUse[table.MetaPage] = struct{}{}

		if err := cat.loadDefinition(store, table); err != nil {
			return nil, nil, err
		}
		if err := cat.loadMeta(store, table, inUse); err != nil {
			return nil, nil, err
		}

		cat.tables[table.Name] = table
	}

	return cat, inUse, nil
}

func (cat *Catalog) loadDefinition(store *storage.Store, table *Table) error {
	page, err := store.ReadPage(table.DefPage)
	if err != nil {
		return err
	}
	rowLen := 0
	for i := 0; i < RecordsPerPage; i++ {
		rec := page[i*RecordSize : (i+1)*RecordSize]
		if int(rec[0]) > maxColumnNameLen {
			return dberr.New("catalog.loadDefinition", dberr.CorruptData)
		}
		col, ok := DecodeDefinitionRecord(rec)
		if !ok {
			break
		}
		table.Columns = append(table.Columns, col)
		rowLen += int(col.Size)
	}
	if rowLen <= 0 || rowLen > storage.PageSize {
		return dberr.New("catalog.loadDefinition", dberr.CorruptData)
	}
	table.RowLen = rowLen
	return nil
}

func (cat *Catalog) loadMeta(store *storage.Store, table *Table, inUse map[storage.PageNumber]struct{}) error {
	page, err := store.ReadPage(table.MetaPage)
	if err != nil {
		return err
	}
	for i := 0; i < RecordsPerPage; i++ {
		rel := DecodeMetaRecord(page[i*RecordSize : (i+1)*RecordSize])
		if rel == 0 {
			continue
		}
		abs := storage.PageNumber(int32(table.MetaPage) + rel)
		if abs < 0 {
			return dberr.New("catalog.loadMeta", dberr.CorruptData)
		}
		table.InitialDataOffsets = append(table.InitialDataOffsets, rel)
		inUse[abs] = struct{}{}
	}
	return nil
}

// Get returns the table entry for name, if known.
func (cat *Catalog) Get(name string) (*Table, bool) {
	t, ok := cat.tables[name]
	return t, ok
}

// Has reports whether name is a known table.
func (cat *Catalog) Has(name string) bool {
	_, ok := cat.tables[name]
	return ok
}

// List returns every known table name.
func (cat *Catalog) List() []string {
	names := make([]string, 0, len(cat.tables))
	for name := range cat.tables {
		names = append(names, name)
	}
	return names
}

// FreeHeaderSlot returns the index of the first unused Header directory
// slot, or -1 if all 128 slots are occupied.
func (cat *Catalog) FreeHeaderSlot() int {
	for i := 0; i < RecordsPerPage; i++ {
		if !cat.slotUsed[i] {
			return i
		}
	}
	return -1
}

// Add registers a newly created table in the in-memory mirror. The
// caller has already written the Header/Definition/Meta pages to disk.
func (cat *Catalog) Add(table *Table) {
	cat.slotUsed[table.HeaderSlot] = true
	cat.tables[table.Name] = table
}

// Remove deletes a table from the in-memory mirror. The caller has
// already zeroed its Header record on disk.
func (cat *Catalog) Remove(name string) {
	t, ok := cat.tables[name]
	if !ok {
		return
	}
	cat.slotUsed[t.HeaderSlot] = false
	delete(cat.tables, name)
}
