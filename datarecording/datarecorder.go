// Package datarecording stores session data in SQLite tables whose columns
// are derived from Go structs.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Errors returned by the recorder.
var (
	ErrTableExists      = errors.New("table already exists")
	ErrUnknownTable     = errors.New("table does not exist")
	ErrUnsupportedField = errors.New("entry has an unsupported field")
	ErrEntryMismatch    = errors.New("entry does not match the table")
)

// DataRecorder records struct entries into tables.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the exported fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry for a table created earlier.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 10000

type table struct {
	structType reflect.Type
	columns    []string
	entries    []any
}

// SQLiteRecorder is a DataRecorder backed by a SQLite database.
type SQLiteRecorder struct {
	*sql.DB

	lock       sync.Mutex
	fileName   string
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

// New creates a recorder that writes to path + ".sqlite3". An empty path
// selects a unique name. An existing file is never overwritten. The recorder
// is flushed when the program exits through atexit.
func New(path string) (*SQLiteRecorder, error) {
	if path == "" {
		path = "locktel_" + xid.New().String()
	}

	fileName := path + ".sqlite3"

	if _, err := os.Stat(fileName); err == nil {
		return nil, fmt.Errorf("file %s already exists", fileName)
	}

	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fileName, err)
	}

	r := NewWithDB(db)
	r.fileName = fileName

	return r, nil
}

// NewWithDB creates a recorder on an open database.
func NewWithDB(db *sql.DB) *SQLiteRecorder {
	r := &SQLiteRecorder{
		DB:        db,
		tables:    make(map[string]*table),
		batchSize: DefaultBatchSize,
	}

	atexit.Register(func() { _ = r.Close() })

	return r
}

// FileName returns the database file, or an empty string if the recorder
// was created on an existing database.
func (r *SQLiteRecorder) FileName() string {
	return r.fileName
}

// SetBatchSize sets after how many buffered entries InsertData flushes.
func (r *SQLiteRecorder) SetBatchSize(n int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.batchSize = n
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T is not a struct", ErrUnsupportedField, entry)
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			return fmt.Errorf("%w: %s is not exported", ErrUnsupportedField, field.Name)
		}

		if !isAllowedKind(field.Type.Kind()) {
			return fmt.Errorf("%w: %s is %s",
				ErrUnsupportedField, field.Name, field.Type.Kind())
		}
	}

	return nil
}

// CreateTable creates a table whose columns are named after the fields of
// sampleEntry.
func (r *SQLiteRecorder) CreateTable(tableName string, sampleEntry any) error {
	if err := checkStructFields(sampleEntry); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.tables[tableName]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, tableName)
	}

	columns := structs.Names(sampleEntry)
	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + strings.Join(columns, ", \n\t") + "\n" + `);`

	if _, err := r.Exec(createTableSQL); err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	r.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		columns:    columns,
	}

	return nil
}

// InsertData buffers an entry. Reaching the batch size flushes all tables.
func (r *SQLiteRecorder) InsertData(tableName string, entry any) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, exists := r.tables[tableName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("%w: %T into %s", ErrEntryMismatch, entry, tableName)
	}

	t.entries = append(t.entries, entry)
	r.entryCount++

	if r.entryCount >= r.batchSize {
		return r.flush()
	}

	return nil
}

// ListTables returns the names of all tables created by this recorder.
func (r *SQLiteRecorder) ListTables() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Flush writes all buffered entries in one transaction.
func (r *SQLiteRecorder) Flush() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.flush()
}

func (r *SQLiteRecorder) flush() error {
	if r.entryCount == 0 || r.closed {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for name, t := range r.tables {
		if err := insertEntries(tx, name, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	for _, t := range r.tables {
		t.entries = nil
	}

	r.entryCount = 0

	return nil
}

func insertEntries(tx *sql.Tx, name string, t *table) error {
	if len(t.entries) == 0 {
		return nil
	}

	placeholders := make([]string, len(t.columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	sqlStr := "INSERT INTO " + name +
		" VALUES (" + strings.Join(placeholders, ", ") + ")"

	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		return fmt.Errorf("preparing insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, entry := range t.entries {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return fmt.Errorf("inserting into %s: %w", name, err)
		}
	}

	return nil
}

// Close flushes the buffered entries and closes the database. Close may be
// called more than once.
func (r *SQLiteRecorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil
	}

	err := r.flush()
	r.closed = true

	return errors.Join(err, r.DB.Close())
}

var _ DataRecorder = (*SQLiteRecorder)(nil)
