package output

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

const defaultBatchSize = 10000

type table struct {
	insert  string
	entries [][]interface{}
}

// SQLiteOutput buffers records in memory and writes them in batches, one
// transaction per flush. Pending records are flushed on Close and on
// atexit.Exit.
type SQLiteOutput struct {
	*sql.DB

	mu         sync.Mutex
	records    RecordFactory
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

// NewSQLiteOutput creates a new database at path. The file must not exist.
func NewSQLiteOutput(path string, records RecordFactory) (*SQLiteOutput, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	w := &SQLiteOutput{
		DB:        db,
		records:   records,
		tables:    make(map[string]*table),
		batchSize: defaultBatchSize,
	}
	atexit.Register(func() {
		if err := w.Flush(); err != nil {
			logrus.WithError(err).WithField("path", path).Error("flushing records at exit")
		}
	})

	logrus.WithField("path", path).Info("database created for recording")
	return w, nil
}

func (w *SQLiteOutput) WriteMessage(topic string, msg []byte) error {
	cols, err := decode(w.records, topic, msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	name := topicToTable(topic)
	t, exists := w.tables[name]
	if !exists {
		t, err = w.createTable(name, cols)
		if err != nil {
			w.mu.Unlock()
			return err
		}
	}

	_, values, _ := dialectSQLite.buildInsertComponents(cols)
	t.entries = append(t.entries, values)
	w.entryCount++
	full := w.entryCount >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush()
	}
	return nil
}

func (w *SQLiteOutput) createTable(name string, cols []column) (*table, error) {
	if _, err := w.Exec(dialectSQLite.createTable(name, cols)); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", name, err)
	}

	columns, _, placeholders := dialectSQLite.buildInsertComponents(cols)
	t := &table{
		insert: "INSERT INTO " + name + " (" + columns + ") VALUES (" + placeholders + ")",
	}
	w.tables[name] = t
	return t, nil
}

// ListTables returns the names of all tables created so far, sorted.
func (w *SQLiteOutput) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	tables := make([]string, 0, len(w.tables))
	for name := range w.tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// Flush writes all buffered records into the database.
func (w *SQLiteOutput) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.entryCount == 0 || w.closed {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for name, t := range w.tables {
		if len(t.entries) == 0 {
			continue
		}
		stmt, err := tx.Prepare(t.insert)
		if err != nil {
			return fmt.Errorf("preparing insert into %s: %w", name, err)
		}
		for _, values := range t.entries {
			if _, err := stmt.Exec(values...); err != nil {
				stmt.Close()
				return fmt.Errorf("inserting into %s: %w", name, err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}
	w.entryCount = 0
	return nil
}

func (w *SQLiteOutput) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return flushErr
	}
	w.closed = true
	if err := w.DB.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}
