package entity

import (
	"context"
	"fmt"

	"github.com/allankoechke/mantis/internal/apperr"
)

// listView executes the entity's stored view_query wrapped for
// pagination, instead of a table scan. Recovered from
// _examples/original_source (view entities back onto an arbitrary SQL
// query) — a feature the distilled spec names as a type but does not
// detail the read path for.
func (e *Entity) listView(ctx context.Context, opts ListOptions) ([]Record, *Pagination, error) {
	if e.Schema.ViewQuery == "" {
		return nil, nil, apperr.NewInvalidArgument("view entity %s has no view_query configured", e.Schema.Name)
	}

	sess, err := e.Pool.Checkout(ctx)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}
	defer e.Pool.Return(sess)

	offset := (opts.PageIndex - 1) * opts.PerPage

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS view_src LIMIT %d OFFSET %d", e.Schema.ViewQuery, opts.PerPage, offset)

	rows, err := sess.DB.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}

	records, err := e.scanRows(rows, cols)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}

	pagination := &Pagination{PageIndex: opts.PageIndex, PerPage: opts.PerPage, PageCount: -1, RecordCount: -1}

	if opts.CountPages {
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS view_src", e.Schema.ViewQuery)

		var total int
		if err := sess.DB.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
			return nil, nil, apperr.NewInternal(err)
		}

		pagination.RecordCount = total
		pagination.PageCount = (total + opts.PerPage - 1) / opts.PerPage
	}

	return records, pagination, nil
}
