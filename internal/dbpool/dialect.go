// Package dbpool implements the fixed-size session pool over database/sql
//, including the per-dialect DDL facade.
package dbpool

import (
	"fmt"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/schema"
)

// Dialect identifies one of the three supported relational backends.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgresql"
	DialectMySQL    Dialect = "mysql"
)

// Placeholder returns the squirrel placeholder format name to use for this
// dialect's bound parameters.
func (d Dialect) Placeholder() string {
	if d == DialectPostgres {
		return "dollar"
	}
	return "question"
}

// ColumnType projects a schema.FieldType to this dialect's native column
// type, reproducing a couple of dialect quirks: sqlite stores `date` as
// TEXT, and postgres has no unsigned integer types.
func (d Dialect) ColumnType(t schema.FieldType) string {
	switch d {
	case DialectSQLite:
		return sqliteColumnType(t)
	case DialectPostgres:
		return postgresColumnType(t)
	case DialectMySQL:
		return mysqlColumnType(t)
	default:
		return "TEXT"
	}
}

func sqliteColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldDate:
		return "TEXT"
	case schema.FieldBool:
		return "INTEGER"
	case schema.FieldDouble:
		return "REAL"
	case schema.FieldInt8, schema.FieldUint8, schema.FieldInt16, schema.FieldUint16,
		schema.FieldInt32, schema.FieldUint32, schema.FieldInt64, schema.FieldUint64:
		return "INTEGER"
	case schema.FieldBlob:
		return "BLOB"
	default: // string, xml, json, file, files
		return "TEXT"
	}
}

// postgresColumnType maps unsigned kinds down to the nearest signed type
// postgres actually has: uint8/int8 share SMALLINT, and bool is stored as
// SMALLINT too, so existing rows survive a later widen of the field's
// range rather than a real BOOLEAN column.
func postgresColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldDate:
		return "TIMESTAMPTZ"
	case schema.FieldBool:
		return "SMALLINT"
	case schema.FieldDouble:
		return "DOUBLE PRECISION"
	case schema.FieldInt8, schema.FieldUint8, schema.FieldInt16, schema.FieldUint16:
		return "SMALLINT"
	case schema.FieldInt32, schema.FieldUint32:
		return "INTEGER"
	case schema.FieldInt64, schema.FieldUint64:
		return "BIGINT"
	case schema.FieldBlob:
		return "BYTEA"
	case schema.FieldJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func mysqlColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldDate:
		return "DATETIME"
	case schema.FieldBool:
		return "TINYINT(1)"
	case schema.FieldDouble:
		return "DOUBLE"
	case schema.FieldInt8:
		return "TINYINT"
	case schema.FieldUint8:
		return "TINYINT UNSIGNED"
	case schema.FieldInt16:
		return "SMALLINT"
	case schema.FieldUint16:
		return "SMALLINT UNSIGNED"
	case schema.FieldInt32:
		return "INT"
	case schema.FieldUint32:
		return "INT UNSIGNED"
	case schema.FieldInt64:
		return "BIGINT"
	case schema.FieldUint64:
		return "BIGINT UNSIGNED"
	case schema.FieldBlob:
		return "LONGBLOB"
	case schema.FieldJSON:
		return "JSON"
	default:
		return "TEXT"
	}
}

// AddColumnDDL returns the `ALTER TABLE ... ADD COLUMN ...` statement for
// the given field.
func (d Dialect) AddColumnDDL(table string, f schema.Field) string {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, f.Name, d.ColumnType(f.Type))
	if f.Required {
		ddl += " NOT NULL DEFAULT ''"
	}
	return ddl
}

// DropColumnDDL returns the `ALTER TABLE ... DROP COLUMN ...` statement.
func (d Dialect) DropColumnDDL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

// AlterColumnDDL returns the statement to change column to newType. SQLite
// cannot ALTER a column's type, so the executor must reject the operation
// instead of attempting unsupported DDL.
func (d Dialect) AlterColumnDDL(table, column string, newType schema.FieldType) (string, error) {
	if d == DialectSQLite {
		return "", apperr.NewInternal(fmt.Errorf("sqlite3 does not support altering column types (table=%s column=%s)", table, column))
	}

	if d == DialectMySQL {
		return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", table, column, d.ColumnType(newType)), nil
	}

	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, column, d.ColumnType(newType)), nil
}

// UniqueConstraintDDL returns the SQL fragment adding a unique constraint
// named cname over column col.
func (d Dialect) UniqueConstraintDDL(table, cname, col string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", table, cname, col)
}

// CreateTableDDL synthesizes a CREATE TABLE statement from an entity
// schema's fields.
func (d Dialect) CreateTableDDL(s schema.Schema) string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		col := fmt.Sprintf("%s %s", f.Name, d.ColumnType(f.Type))
		if f.PrimaryKey {
			col += " PRIMARY KEY"
		}
		if f.Required && !f.PrimaryKey {
			col += " NOT NULL"
		}
		if f.Unique && !f.PrimaryKey {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", s.Name)
	for i, c := range cols {
		if i > 0 {
			stmt += ", "
		}
		stmt += c
	}
	stmt += ")"

	return stmt
}
