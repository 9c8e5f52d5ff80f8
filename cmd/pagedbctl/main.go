// Command pagedbctl is the control utility for pagedb files: create
// databases and tables, and insert/select/update/delete rows whose
// bytes are passed as hex strings on the command line.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robwalker/pagedb/internal/catalog"
	"github.com/robwalker/pagedb/internal/pagedb"
)

var version = "0.1.0"

var CLI struct {
	LogLevel string `help:"Log level: debug, info, warn, error" default:"info" enum:"debug,info,warn,error"`

	Create      CreateCmd      `cmd:"" help:"Create a new, empty database file"`
	CreateTable CreateTableCmd `cmd:"" name:"create-table" help:"Create a table in an existing database"`
	DropTable   DropTableCmd   `cmd:"" name:"drop-table" help:"Drop a table and release its pages"`
	Describe    DescribeCmd    `cmd:"" help:"Print a table's column definitions"`
	Insert      InsertCmd      `cmd:"" help:"Insert one row into a table"`
	Select      SelectCmd      `cmd:"" help:"Select rows matching optional conditions"`
	Update      UpdateCmd      `cmd:"" help:"Update matching rows' byte ranges"`
	Delete      DeleteCmd      `cmd:"" help:"Delete matching rows"`
	Serve       ServeCmd       `cmd:"" help:"Serve Prometheus metrics while a long-running client operates on the same file"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("pagedbctl"),
		kong.Description("Control utility for pagedb page-based storage files."),
		kong.UsageOnError(),
	)

	level, err := zerolog.ParseLevel(CLI.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	err = ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}

// CreateCmd creates a new, empty database file.
type CreateCmd struct {
	Path string `arg:"" help:"Path to the database file to create" type:"path"`
}

func (c *CreateCmd) Run() error {
	if err := pagedb.CreateDatabase(c.Path); err != nil {
		return err
	}
	fmt.Printf("Created database %s\n", c.Path)
	return nil
}

// CreateTableCmd creates a table with the given columns.
type CreateTableCmd struct {
	Path    string   `arg:"" help:"Path to the database file" type:"existingfile"`
	Name    string   `arg:"" help:"Table name"`
	Columns []string `name:"column" short:"c" help:"Column spec name:type:size, repeatable" required:""`
}

func (c *CreateTableCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	cols, err := parseColumns(c.Columns)
	if err != nil {
		return err
	}
	if err := db.CreateTable(c.Name, cols); err != nil {
		return err
	}
	fmt.Printf("Created table %s (%d column(s))\n", c.Name, len(cols))
	return nil
}

// DropTableCmd drops a table.
type DropTableCmd struct {
	Path string `arg:"" help:"Path to the database file" type:"existingfile"`
	Name string `arg:"" help:"Table name"`
}

func (c *DropTableCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DropTable(c.Name); err != nil {
		return err
	}
	fmt.Printf("Dropped table %s\n", c.Name)
	return nil
}

// DescribeCmd prints a table's column definitions.
type DescribeCmd struct {
	Path string `arg:"" help:"Path to the database file" type:"existingfile"`
	Name string `arg:"" help:"Table name"`
}

func (c *DescribeCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	cols, err := db.GetTableDef(c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("Table %s\n", c.Name)
	for _, col := range cols {
		fmt.Printf("  - %s type=%d size=%d\n", col.Name, col.Type, col.Size)
	}
	return nil
}

// InsertCmd inserts one row, given as a hex string.
type InsertCmd struct {
	Path string `arg:"" help:"Path to the database file" type:"existingfile"`
	Name string `arg:"" help:"Table name"`
	Row  string `required:"" help:"Row bytes as a hex string"`
}

func (c *InsertCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	row, err := hex.DecodeString(c.Row)
	if err != nil {
		return fmt.Errorf("invalid --row hex: %w", err)
	}
	if err := db.Insert(c.Name, row); err != nil {
		return err
	}
	fmt.Println("Inserted 1 row")
	return nil
}

// SelectCmd selects and prints every matching row as hex.
type SelectCmd struct {
	Path  string   `arg:"" help:"Path to the database file" type:"existingfile"`
	Name  string   `arg:"" help:"Table name"`
	Where []string `help:"Condition lo:hi:hex, repeatable"`
}

func (c *SelectCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	conditions, err := parseConditions(c.Where)
	if err != nil {
		return err
	}
	rows, err := db.Select(c.Name, conditions)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Println(hex.EncodeToString(row))
	}
	fmt.Printf("(%d row(s))\n", len(rows))
	return nil
}

// UpdateCmd overwrites byte ranges of every matching row.
type UpdateCmd struct {
	Path  string   `arg:"" help:"Path to the database file" type:"existingfile"`
	Name  string   `arg:"" help:"Table name"`
	Where []string `help:"Condition lo:hi:hex, repeatable"`
	Set   []string `required:"" help:"Write lo:hi:hex, repeatable"`
}

func (c *UpdateCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	conditions, err := parseConditions(c.Where)
	if err != nil {
		return err
	}
	writes, err := parseWrites(c.Set)
	if err != nil {
		return err
	}
	n, err := db.Update(c.Name, conditions, writes)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %d row(s)\n", n)
	return nil
}

// DeleteCmd deletes every matching row.
type DeleteCmd struct {
	Path  string   `arg:"" help:"Path to the database file" type:"existingfile"`
	Name  string   `arg:"" help:"Table name"`
	Where []string `help:"Condition lo:hi:hex, repeatable"`
}

func (c *DeleteCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	conditions, err := parseConditions(c.Where)
	if err != nil {
		return err
	}
	n, err := db.Delete(c.Name, conditions)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d row(s)\n", n)
	return nil
}

// ServeCmd exposes the open database's Prometheus registry over HTTP
// while another process drives CLI operations against the same file.
type ServeCmd struct {
	Path        string `arg:"" help:"Path to the database file" type:"existingfile"`
	MetricsAddr string `name:"metrics-addr" default:":9090" help:"Address to serve /metrics on"`
}

func (c *ServeCmd) Run() error {
	db, err := pagedb.Open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(db.Registry(), promhttp.HandlerOpts{}))

	log.Info().Str("addr", c.MetricsAddr).Str("path", c.Path).Msg("serving metrics")
	return http.ListenAndServe(c.MetricsAddr, mux)
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func parseColumns(specs []string) ([]catalog.ColumnDef, error) {
	cols := make([]catalog.ColumnDef, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid column spec %q, want name:type:size", spec)
		}
		typ, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid column type %q: %w", parts[1], err)
		}
		size, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid column size %q: %w", parts[2], err)
		}
		cols = append(cols, catalog.ColumnDef{Name: parts[0], Type: uint8(typ), Size: uint16(size)})
	}
	return cols, nil
}

func parseConditions(specs []string) ([]pagedb.Condition, error) {
	conditions := make([]pagedb.Condition, 0, len(specs))
	for _, spec := range specs {
		lo, hi, value, err := parseRange(spec)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, pagedb.Condition{Lo: lo, Hi: hi, Value: value})
	}
	return conditions, nil
}

func parseWrites(specs []string) ([]pagedb.FieldWrite, error) {
	writes := make([]pagedb.FieldWrite, 0, len(specs))
	for _, spec := range specs {
		lo, hi, value, err := parseRange(spec)
		if err != nil {
			return nil, err
		}
		writes = append(writes, pagedb.FieldWrite{Lo: lo, Hi: hi, Value: value})
	}
	return writes, nil
}

func parseRange(spec string) (lo, hi int, value []byte, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return 0, 0, nil, fmt.Errorf("invalid range spec %q, want lo:hi:hex", spec)
	}
	lo, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid lo %q: %w", parts[0], err)
	}
	hi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid hi %q: %w", parts[1], err)
	}
	value, err = hex.DecodeString(parts[2])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid hex value %q: %w", parts[2], err)
	}
	return lo, hi, value, nil
}
