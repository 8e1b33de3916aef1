package entity

import (
	"context"
	"database/sql"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/schema"
)

// Pagination mirrors the envelope's `pagination` object.
type Pagination struct {
	PageIndex   int `json:"page_index"`
	PerPage     int `json:"per_page"`
	PageCount   int `json:"page_count"`
	RecordCount int `json:"record_count"`
}

// ListOptions configures Entity.List. Pagination is required.
type ListOptions struct {
	PageIndex  int
	PerPage    int
	CountPages bool
}

// Validate enforces pagination invariants.
func (o ListOptions) Validate() error {
	if o.PageIndex < 1 {
		return apperr.NewInvalidArgument("page_index must be >= 1")
	}
	if o.PerPage <= 0 {
		return apperr.NewInvalidArgument("per_page must be > 0")
	}
	return nil
}

// List returns a page of records ordered by `created DESC`. View entities
// run their stored query instead of a table scan.
func (e *Entity) List(ctx context.Context, opts ListOptions) ([]Record, *Pagination, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	if e.Schema.Type == schema.TypeView {
		return e.listView(ctx, opts)
	}

	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	cols := e.columnNames()
	offset := uint64((opts.PageIndex - 1) * opts.PerPage) //nolint:gosec

	query, args, err := e.builder().
		Select(cols...).
		From(e.Schema.Name).
		OrderBy("created DESC").
		Limit(uint64(opts.PerPage)). //nolint:gosec
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}

	rows, err := sess.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}
	defer rows.Close()

	records, err := e.scanRows(rows, cols)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}

	pagination := &Pagination{PageIndex: opts.PageIndex, PerPage: opts.PerPage, PageCount: -1, RecordCount: -1}

	if opts.CountPages {
		countQuery, countArgs, err := e.builder().Select("COUNT(id)").From(e.Schema.Name).ToSql()
		if err != nil {
			return nil, nil, apperr.NewInternal(err)
		}

		var total int
		if err := sess.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return nil, nil, apperr.NewInternal(err)
		}

		pagination.RecordCount = total
		pagination.PageCount = (total + opts.PerPage - 1) / opts.PerPage
	}

	return records, pagination, nil
}

func (e *Entity) scanRows(rows *sql.Rows, cols []string) ([]Record, error) {
	var records []Record

	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = &raw[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = unmarshalColumn(e.Schema, c, raw[i])
		}

		e.redactPassword(rec)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if records == nil {
		records = []Record{}
	}

	return records, nil
}
