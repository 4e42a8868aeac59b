// Package output stores published records in SQL databases: an embedded
// SQLite file per run, or a shared Postgres database. Each topic becomes one
// table whose columns follow the record struct.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/fatih/structs"
)

// RecordFactory returns an empty record of the type published on topic.
type RecordFactory func(topic string) (interface{}, error)

type column struct {
	name  string
	value interface{}
}

func decode(records RecordFactory, topic string, msg []byte) ([]column, error) {
	record, err := records(topic)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(msg, record); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", topic, err)
	}
	return columnsOf(record), nil
}

// columnsOf lists the exported fields of record in declaration order, named
// by their json tag.
func columnsOf(record interface{}) []column {
	fields := structs.Fields(record)
	cols := make([]column, 0, len(fields))
	for _, f := range fields {
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag("json"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = snakeCaseKey(f.Name())
		}
		cols = append(cols, column{name: name, value: f.Value()})
	}
	return cols
}

func topicToTable(topic string) string {
	return "fact_" + strings.TrimSuffix(topic, "_events")
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) columnType(v interface{}) string {
	switch v.(type) {
	case int, int32, int64:
		if d == dialectPostgres {
			return "BIGINT"
		}
		return "INTEGER"
	case float32, float64:
		if d == dialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d dialect) placeholder(i int) string {
	if d == dialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (d dialect) createTable(table string, cols []column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.name + " " + d.columnType(c.value)
	}
	return "CREATE TABLE IF NOT EXISTS " + table + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

// buildInsertComponents returns the column list, the values and the
// placeholder list of an INSERT for cols.
func (d dialect) buildInsertComponents(cols []column) (string, []interface{}, string) {
	names := make([]string, len(cols))
	values := make([]interface{}, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		values[i] = c.value
		placeholders[i] = d.placeholder(i + 1)
	}
	return strings.Join(names, ", "), values, strings.Join(placeholders, ", ")
}

// snakeCaseKey turns a Go field name into a column name, keeping acronyms
// together: OrderID becomes order_id.
func snakeCaseKey(key string) string {
	runes := []rune(key)
	var result strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(unicode.ToLower(r))
	}
	return result.String()
}
