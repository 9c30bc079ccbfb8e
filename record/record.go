// Package record persists simulation results into a SQLite database.
// One table holds a summary row per run; a second table can hold a row
// per replayed access. Table schemas are derived from the entry structs
// by reflection, so the packages producing results do not write SQL.
package record

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	// Registers the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// A RunEntry is one row of the run table: the cache geometry and the
// final counters of one replayed trace.
type RunEntry struct {
	ID             string
	TracePath      string
	SetBits        int
	Associativity  int
	BlockBits      int
	Hits           uint64
	Misses         uint64
	Evictions      uint64
	DirtyBytes     uint64
	DirtyEvictions uint64
}

// An AccessEntry is one row of the access table: a single replayed
// access and its outcome.
type AccessEntry struct {
	RunID        string
	Seq          uint64
	Op           string
	Addr         uint64
	Size         uint64
	Hit          bool
	Eviction     bool
	BecameDirty  bool
	EvictedDirty bool
}

// NewRunID returns a fresh globally unique run identifier.
func NewRunID() string {
	return xid.New().String()
}

// A DataRecorder stores rows of result data. It creates one table per
// row type and batches inserts until Flush.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry for insertion into an existing table.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all created tables.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush()
}

// New creates a DataRecorder backed by a SQLite database file at
// path + ".sqlite3". An empty path picks a unique name. It panics if the
// file already exists.
func New(path string) DataRecorder {
	if path == "" {
		path = "cachesim_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("record: file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Recording results to %s\n", filename)

	return NewWithDB(db)
}

// NewWithDB creates a DataRecorder that writes into an already opened
// database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &sqliteRecorder{
		db:        db,
		batchSize: 4096,
		tables:    make(map[string]*tableBuffer),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

type tableBuffer struct {
	structType reflect.Type
	pending    []any
}

type sqliteRecorder struct {
	db *sql.DB

	tables    map[string]*tableBuffer
	batchSize int
	buffered  int
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	entryType := reflect.TypeOf(sampleEntry)
	mustBeFlatStruct(entryType)

	columns := strings.Join(structs.Names(sampleEntry), ",\n\t")
	r.mustExec("CREATE TABLE " + tableName + " (\n\t" + columns + "\n);")

	r.tables[tableName] = &tableBuffer{structType: entryType}
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	buf, ok := r.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("record: table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != buf.structType {
		panic(fmt.Sprintf("record: entry type mismatch for table %s",
			tableName))
	}

	buf.pending = append(buf.pending, entry)

	r.buffered++
	if r.buffered >= r.batchSize {
		r.Flush()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	return names
}

func (r *sqliteRecorder) Flush() {
	if r.buffered == 0 {
		return
	}

	r.mustExec("BEGIN TRANSACTION")
	defer r.mustExec("COMMIT TRANSACTION")

	for name, buf := range r.tables {
		if len(buf.pending) == 0 {
			continue
		}

		r.flushTable(name, buf)
	}

	r.buffered = 0
}

func (r *sqliteRecorder) flushTable(name string, buf *tableBuffer) {
	placeholders := strings.TrimSuffix(
		strings.Repeat("?, ", buf.structType.NumField()), ", ")

	stmt, err := r.db.Prepare(
		"INSERT INTO " + name + " VALUES (" + placeholders + ")")
	if err != nil {
		panic(err)
	}
	defer stmt.Close()

	for _, entry := range buf.pending {
		value := reflect.ValueOf(entry)

		args := make([]any, value.NumField())
		for i := range args {
			args[i] = value.Field(i).Interface()
		}

		if _, err := stmt.Exec(args...); err != nil {
			panic(err)
		}
	}

	buf.pending = nil
}

func (r *sqliteRecorder) mustExec(query string) {
	if _, err := r.db.Exec(query); err != nil {
		panic(fmt.Errorf("record: failed to execute %q: %w", query, err))
	}
}

// mustBeFlatStruct panics unless every field of the type maps to a SQL
// scalar column.
func mustBeFlatStruct(entryType reflect.Type) {
	if entryType.Kind() != reflect.Struct {
		panic("record: entries must be structs")
	}

	for i := 0; i < entryType.NumField(); i++ {
		switch entryType.Field(i).Type.Kind() {
		case reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16,
			reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16,
			reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64,
			reflect.String:
		default:
			panic(fmt.Sprintf("record: field %s has unsupported type",
				entryType.Field(i).Name))
		}
	}
}
