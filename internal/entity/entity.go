// Package entity implements the typed runtime CRUD executor over an
// EntitySchema and detailed in §4.2.
package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/schema"
	"github.com/allankoechke/mantis/internal/validators"
)

// Record is an open JSON object mapping field name to value. The executor
// below only ever reads or writes keys present in Entity.Schema.Fields.
type Record map[string]any

const maxIDAttempts = 10

// Entity is a runtime handle over one table, mediating create/read/list/
// update/remove against a checked-out Session.
type Entity struct {
	Schema schema.Schema
	Pool   *dbpool.Pool
	Files  *files.Store
	Log    mlog.Logger
}

// New builds an Entity handle.
func New(s schema.Schema, pool *dbpool.Pool, store *files.Store, log mlog.Logger) *Entity {
	return &Entity{Schema: s, Pool: pool, Files: store, Log: log}
}

func (e *Entity) placeholder() sq.PlaceholderFormat {
	if e.Pool.Dialect.Placeholder() == "dollar" {
		return sq.Dollar
	}
	return sq.Question
}

func (e *Entity) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(e.placeholder())
}

func generateID(attempt int) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	s := id.String()
	if attempt >= 5 {
		// widen the id space once a handful of collisions have occurred.
		s = s + "-" + uuid.NewString()[:8]
	}

	return s
}

// redactPassword erases the `password` key from rec when the entity is an
// auth entity.
func (e *Entity) redactPassword(rec Record) {
	if e.Schema.Type == schema.TypeAuth {
		delete(rec, "password")
	}
}

// fileFieldNames returns the names of every file/files-typed field.
func (e *Entity) fileFieldNames() []string {
	var names []string
	for _, f := range e.Schema.Fields {
		if schema.IsFileType(f.Type) {
			names = append(names, f.Name)
		}
	}
	return names
}

func filesOf(rec Record, field string) []string {
	v, ok := rec[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// RecordExists reports whether id already exists, returning false on any
// driver error (so a driver failure does not keep Create's id-generation
// loop retrying).
func (e *Entity) RecordExists(ctx context.Context, id string) bool {
	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return false
	}
	defer e.Pool.Return(sess)

	query, args, err := e.builder().Select("COUNT(id)").From(e.Schema.Name).Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return false
	}

	var count int
	if err := sess.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false
	}

	return count > 0
}

// coerceColumns filters data down to keys present in the schema, dropping
// everything else silently/§9.
func (e *Entity) coerceColumns(data map[string]any, skipSystem bool) map[string]any {
	out := make(map[string]any, len(data))

	for _, f := range e.Schema.Fields {
		if skipSystem && f.System {
			continue
		}
		if v, ok := data[f.Name]; ok {
			out[f.Name] = v
		}
	}

	return out
}

// Create inserts a new record Entity.create.
func (e *Entity) Create(ctx context.Context, data map[string]any) (Record, error) {
	if e.Schema.Type == schema.TypeView {
		return nil, apperr.NewInvalidArgument("cannot create records on a view entity")
	}

	cols := e.coerceColumns(data, true)

	if err := validators.Record(e.Schema, cols); err != nil {
		return nil, err
	}

	var id string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := generateID(attempt)
		if !e.RecordExists(ctx, candidate) {
			id = candidate
			break
		}
	}
	if id == "" {
		return nil, apperr.NewInternal(errors.New("exhausted id generation attempts"))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	cols["id"] = id
	cols["created"] = now
	cols["updated"] = now

	columns := make([]string, 0, len(cols))
	values := make([]any, 0, len(cols))
	for k, v := range cols {
		columns = append(columns, k)
		values = append(values, marshalValue(v))
	}

	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	query, args, err := e.builder().Insert(e.Schema.Name).Columns(columns...).Values(values...).ToSql()
	if err != nil {
		return nil, apperr.NewInternal(err)
	}

	if _, err := sess.DB.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict(err)
		}
		return nil, apperr.NewInternal(err)
	}

	rec, found, err := e.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NewInternal(fmt.Errorf("record %s not found immediately after insert", id))
	}

	return rec, nil
}

// Read fetches one row by primary key Entity.read.
func (e *Entity) Read(ctx context.Context, id string) (Record, bool, error) {
	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	cols := e.columnNames()

	query, args, err := e.builder().Select(cols...).From(e.Schema.Name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	row := sess.DB.QueryRowContext(ctx, query, args...)

	rec, err := e.scanRow(row, cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	e.redactPassword(rec)

	return rec, true, nil
}

// QueryFromCols builds `WHERE c1=:v OR c2=:v ...` and returns at most one
// row, used by the admin CLI's "remove by id-or-email".
func (e *Entity) QueryFromCols(ctx context.Context, value string, columns []string) (Record, bool, error) {
	return e.queryFromCols(ctx, value, columns, true)
}

// QueryFromColsUnredacted is QueryFromCols without the password-redaction
// step, for callers that need the stored hash itself (e.g. to bcrypt-compare
// it during login) rather than a record bound for the wire.
func (e *Entity) QueryFromColsUnredacted(ctx context.Context, value string, columns []string) (Record, bool, error) {
	return e.queryFromCols(ctx, value, columns, false)
}

func (e *Entity) queryFromCols(ctx context.Context, value string, columns []string, redact bool) (Record, bool, error) {
	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	or := sq.Or{}
	for _, c := range columns {
		or = append(or, sq.Eq{c: value})
	}

	cols := e.columnNames()

	query, args, err := e.builder().Select(cols...).From(e.Schema.Name).Where(or).Limit(1).ToSql()
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	row := sess.DB.QueryRowContext(ctx, query, args...)

	rec, err := e.scanRow(row, cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	if redact {
		e.redactPassword(rec)
	}

	return rec, true, nil
}

// Update applies a partial update, diffing file fields so superseded
// uploads get removed.
func (e *Entity) Update(ctx context.Context, id string, data map[string]any) (Record, error) {
	if e.Schema.Type == schema.TypeView {
		return nil, apperr.NewInvalidArgument("cannot update records on a view entity")
	}

	existing, found, err := e.rawRead(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NewNotFound(e.Schema.Name)
	}

	cols := e.coerceColumns(data, true)
	delete(cols, "id")
	delete(cols, "created")
	delete(cols, "updated")

	for _, f := range e.Schema.Fields {
		if v, present := cols[f.Name]; present {
			if err := validators.Field(f, v); err != nil {
				return nil, err
			}
		}
	}

	var toDelete []string
	for _, ff := range e.fileFieldNames() {
		if newVal, present := cols[ff]; present {
			oldFiles := filesOf(existing, ff)
			newFiles := filesOf(Record{ff: newVal}, ff)
			toDelete = append(toDelete, files.Diff(oldFiles, newFiles)...)
		}
	}

	cols["updated"] = time.Now().UTC().Format(time.RFC3339)

	if len(cols) > 0 {
		update := e.builder().Update(e.Schema.Name)
		for k, v := range cols {
			update = update.Set(k, marshalValue(v))
		}
		update = update.Where(sq.Eq{"id": id})

		query, args, err := update.ToSql()
		if err != nil {
			return nil, apperr.NewInternal(err)
		}

		sess, err := e.Pool.Checkout(ctx)
		if err != nil {
			return nil, apperr.NewInternal(err)
		}

		_, execErr := sess.DB.ExecContext(ctx, query, args...)
		e.Pool.Return(sess)

		if execErr != nil {
			if isUniqueViolation(execErr) {
				return nil, apperr.NewConflict(execErr)
			}
			return nil, apperr.NewInternal(execErr)
		}
	}

	for _, name := range toDelete {
		e.Files.Remove(e.Schema.Name, name)
	}

	rec, found, err := e.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NewNotFound(e.Schema.Name)
	}

	return rec, nil
}

// Remove deletes a record and its referenced files.
func (e *Entity) Remove(ctx context.Context, id string) error {
	if e.Schema.Type == schema.TypeView {
		return apperr.NewInvalidArgument("cannot remove records from a view entity")
	}

	existing, found, err := e.rawRead(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.NewNotFound(e.Schema.Name)
	}

	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return apperr.NewInternal(err)
	}

	query, args, err := e.builder().Delete(e.Schema.Name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		e.Pool.Return(sess)
		return apperr.NewInternal(err)
	}

	_, execErr := sess.DB.ExecContext(ctx, query, args...)
	e.Pool.Return(sess)

	if execErr != nil {
		return apperr.NewInternal(execErr)
	}

	for _, ff := range e.fileFieldNames() {
		for _, name := range filesOf(existing, ff) {
			e.Files.Remove(e.Schema.Name, name)
		}
	}

	return nil
}

// rawRead reads a row without redacting password, for internal use (file
// diffing needs the real stored value, not an auth-redacted view).
func (e *Entity) rawRead(ctx context.Context, id string) (Record, bool, error) {
	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	cols := e.columnNames()

	query, args, err := e.builder().Select(cols...).From(e.Schema.Name).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	row := sess.DB.QueryRowContext(ctx, query, args...)

	rec, err := e.scanRow(row, cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewInternal(err)
	}

	return rec, true, nil
}

func (e *Entity) columnNames() []string {
	names := make([]string, 0, len(e.Schema.Fields))
	for _, f := range e.Schema.Fields {
		names = append(names, f.Name)
	}
	return names
}

func (e *Entity) scanRow(row *sql.Row, cols []string) (Record, error) {
	dest := make([]any, len(cols))
	raw := make([]sql.NullString, len(cols))
	for i := range dest {
		dest[i] = &raw[i]
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec := make(Record, len(cols))
	for i, c := range cols {
		rec[c] = unmarshalColumn(e.Schema, c, raw[i])
	}

	return rec, nil
}

func unmarshalColumn(s schema.Schema, name string, v sql.NullString) any {
	if !v.Valid {
		return nil
	}

	f, ok := s.FieldByName(name)
	if !ok {
		return v.String
	}

	switch f.Type {
	case schema.FieldJSON:
		var out any
		if err := json.Unmarshal([]byte(v.String), &out); err == nil {
			return out
		}
		return v.String
	case schema.FieldFiles:
		var out []string
		if err := json.Unmarshal([]byte(v.String), &out); err == nil {
			return out
		}
		return []string{}
	case schema.FieldBool:
		return v.String == "1" || strings.EqualFold(v.String, "true")
	default:
		return v.String
	}
}

func marshalValue(v any) any {
	switch val := v.(type) {
	case []string:
		b, _ := json.Marshal(val)
		return string(b)
	case []any:
		b, _ := json.Marshal(val)
		return string(b)
	case map[string]any:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return v
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
