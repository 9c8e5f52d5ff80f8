// Package pagedb is the public facade over the storage engine: open and
// create database files, and dispatch schema and row operations to the
// catalog, allocator, schema manager and row engine. Every operation is
// logged with zerolog and instrumented with Prometheus metrics.
package pagedb

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robwalker/pagedb/internal/alloc"
	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/metrics"
	"github.com/robwalker/pagedb/internal/rowengine"
	"github.com/robwalker/pagedb/internal/schema"
	"github.com/robwalker/pagedb/internal/storage"
)

// Condition and FieldWrite are re-exported so callers never need to
// import internal/rowengine directly.
type (
	Condition  = rowengine.Condition
	FieldWrite = rowengine.FieldWrite
	ColumnDef  = catalog.ColumnDef
)

// Database is a single open handle over a pagedb file. It is not safe
// for concurrent use from multiple goroutines; the format has no
// concurrency control and behavior with two open handles on the same
// file is undefined.
type Database struct {
	path      string
	file      *os.File
	store     *storage.Store
	catalog   *catalog.Catalog
	allocator *alloc.Allocator
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	log       zerolog.Logger
}

// CreateDatabase creates a new database file at path, extended to
// exactly one zeroed page, and syncs it before returning.
func CreateDatabase(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return dberr.Wrap("pagedb.CreateDatabase", dberr.Io, errors.Wrap(err, "create file"))
	}
	defer f.Close()

	if err := f.Truncate(storage.PageSize); err != nil {
		return dberr.Wrap("pagedb.CreateDatabase", dberr.Io, errors.Wrap(err, "truncate"))
	}
	if err := f.Sync(); err != nil {
		return dberr.Wrap("pagedb.CreateDatabase", dberr.Io, errors.Wrap(err, "fsync"))
	}
	return nil
}

// Open opens an existing database file for read+write, parses its
// catalog, and seeds the page allocator from the parsed offsets.
func Open(path string) (*Database, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, dberr.Wrap("pagedb.Open", dberr.Io, errors.Wrap(err, "open file"))
	}

	store := storage.Open(f)
	cat, inUse, err := catalog.Load(store)
	if err != nil {
		f.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	db := &Database{
		path:      path,
		file:      f,
		store:     store,
		catalog:   cat,
		allocator: alloc.New(inUse),
		metrics:   metrics.New(reg),
		registry:  reg,
		log:       log.With().Str("component", "pagedb").Str("path", path).Logger(),
	}
	db.metrics.PagesInUse.Set(float64(len(inUse)))
	db.log.Debug().Int("tables", len(cat.List())).Msg("opened database")
	return db, nil
}

// Close flushes the underlying file and releases it.
func (db *Database) Close() error {
	if err := db.store.Flush(); err != nil {
		return err
	}
	if err := db.file.Close(); err != nil {
		return dberr.Wrap("pagedb.Close", dberr.Io, errors.Wrap(err, "close file"))
	}
	return nil
}

// Registry exposes the database's Prometheus registry so a caller (the
// CLI's serve subcommand) can mount it behind promhttp.
func (db *Database) Registry() *prometheus.Registry {
	return db.registry
}

func (db *Database) instrument(op string, fn func() error) error {
	start := time.Now()
	db.log.Debug().Str("op", op).Msg("start")
	err := fn()
	db.metrics.Observe(op, start, err)
	event := db.log.Debug()
	if err != nil {
		event = db.log.Warn().Err(err)
	}
	event.Str("op", op).Dur("elapsed", time.Since(start)).Msg("done")
	return err
}

// CreateTable creates a new table with the given column definitions.
func (db *Database) CreateTable(name string, columns []ColumnDef) error {
	return db.instrument("create_table", func() error {
		err := schema.CreateTable(db.store, db.catalog, db.allocator, name, columns)
		db.metrics.PagesInUse.Set(float64(len(db.allocator.Snapshot())))
		return err
	})
}

// DropTable removes a table and releases all of its pages.
func (db *Database) DropTable(name string) error {
	return db.instrument("drop_table", func() error {
		err := schema.DropTable(db.store, db.catalog, db.allocator, name)
		db.metrics.PagesInUse.Set(float64(len(db.allocator.Snapshot())))
		return err
	})
}

// GetTableDef returns the column definitions of a known table.
func (db *Database) GetTableDef(name string) ([]ColumnDef, error) {
	var cols []ColumnDef
	err := db.instrument("get_table_def", func() error {
		table, err := db.lookupTable("pagedb.GetTableDef", name)
		if err != nil {
			return err
		}
		cols = make([]ColumnDef, len(table.Columns))
		copy(cols, table.Columns)
		return nil
	})
	return cols, err
}

func (db *Database) lookupTable(op, name string) (*catalog.Table, error) {
	table, ok := db.catalog.Get(name)
	if !ok {
		return nil, dberr.New(op, dberr.TableNotFound)
	}
	return table, nil
}

// Insert writes row into the first free slot of table. row must be
// exactly the table's row width.
func (db *Database) Insert(table string, row []byte) error {
	return db.instrument("insert", func() error {
		t, err := db.lookupTable("pagedb.Insert", table)
		if err != nil {
			return err
		}
		err = rowengine.Insert(db.store, db.allocator, t, row)
		db.metrics.PagesInUse.Set(float64(len(db.allocator.Snapshot())))
		return err
	})
}

// Select returns a copy of every row in table matching every condition.
func (db *Database) Select(table string, conditions []Condition) ([][]byte, error) {
	var rows [][]byte
	err := db.instrument("select", func() error {
		t, err := db.lookupTable("pagedb.Select", table)
		if err != nil {
			return err
		}
		rows, err = rowengine.Select(db.store, t, conditions)
		if err == nil {
			db.metrics.RowsMatchedTotal.WithLabelValues("select").Add(float64(len(rows)))
		}
		return err
	})
	return rows, err
}

// Update overwrites the given byte ranges of every matching row,
// returning the number of rows matched.
func (db *Database) Update(table string, conditions []Condition, writes []FieldWrite) (int, error) {
	var n int
	err := db.instrument("update", func() error {
		t, err := db.lookupTable("pagedb.Update", table)
		if err != nil {
			return err
		}
		n, err = rowengine.Update(db.store, t, conditions, writes)
		if err == nil {
			db.metrics.RowsMatchedTotal.WithLabelValues("update").Add(float64(n))
		}
		return err
	})
	return n, err
}

// Delete zeroes every matching row and releases any data page that
// becomes wholly empty, returning the number of rows matched.
func (db *Database) Delete(table string, conditions []Condition) (int, error) {
	var n int
	err := db.instrument("delete", func() error {
		t, err := db.lookupTable("pagedb.Delete", table)
		if err != nil {
			return err
		}
		n, err = rowengine.Delete(db.store, db.allocator, t, conditions)
		if err == nil {
			db.metrics.RowsMatchedTotal.WithLabelValues("delete").Add(float64(n))
		}
		db.metrics.PagesInUse.Set(float64(len(db.allocator.Snapshot())))
		return err
	})
	return n, err
}

// ListTables returns every known table name.
func (db *Database) ListTables() []string {
	var names []string
	db.instrument("list_tables", func() error {
		names = db.catalog.List()
		return nil
	})
	return names
}
