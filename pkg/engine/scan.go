package engine

import (
	"database/sql"
	"strconv"

	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sql/pkg/pool"
)

// ScanRecords reads every remaining row of rows into pooled records with
// fields in column order. Repeated column names are made unique with
// UniqueFields. []byte values are converted to strings. The caller still
// closes rows.
func ScanRecords(rows *sql.Rows, source string) ([]*pool.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to read result columns")
	}
	columns = UniqueFields(columns)

	var records []*pool.Record
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			releaseAll(records)
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "failed to scan row")
		}

		r := pool.GetRecord()
		r.ID = pool.GenerateID("row")
		r.Metadata.Source = source
		for i, col := range columns {
			r.Set(col, convertValue(values[i]))
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		releaseAll(records)
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to iterate rows")
	}
	return records, nil
}

// UniqueFields returns names with every repeated name after the first
// suffixed _1, _2, ... skipping suffixes that are already taken. Names are
// returned unchanged when they are already unique.
func UniqueFields(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	if len(taken) == len(names) {
		return names
	}

	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if !seen[n] {
			out[i] = n
			seen[n] = true
			continue
		}
		for k := 1; ; k++ {
			candidate := n + "_" + strconv.Itoa(k)
			if !taken[candidate] && !seen[candidate] {
				out[i] = candidate
				seen[candidate] = true
				break
			}
		}
	}
	return out
}

func convertValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func releaseAll(records []*pool.Record) {
	for _, r := range records {
		r.Release()
	}
}
