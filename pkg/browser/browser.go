// Package browser is a read-only view over the raw storage buckets.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/timoknapp/gulfer/pkg/storage"
)

var ErrUnknownTable = errors.New("unknown table")

// KeyColumn holds the storage key of each row.
const KeyColumn = "_key"

// RawColumn holds documents that are not JSON objects.
const RawColumn = "_raw"

type Table struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

type Page struct {
	Table   string                   `json:"table"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Total   int                      `json:"total"`
}

type Browser struct {
	backend storage.Backend
}

func New(backend storage.Backend) *Browser {
	return &Browser{backend: backend}
}

// Tables lists every bucket with its row count.
func (b *Browser) Tables(ctx context.Context) ([]Table, error) {
	names, err := b.backend.Buckets()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	tables := make([]Table, 0, len(names))
	for _, name := range names {
		n := 0
		if err := b.backend.ForEach(name, func(string, []byte) error { n++; return nil }); err != nil {
			return nil, fmt.Errorf("%w: count %s: %v", storage.ErrStorage, name, err)
		}
		tables = append(tables, Table{Name: name, Rows: n})
	}
	return tables, nil
}

func (b *Browser) known(table string) (bool, error) {
	names, err := b.backend.Buckets()
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	for _, n := range names {
		if n == table {
			return true, nil
		}
	}
	return false, nil
}

// Rows decodes up to limit documents of a table. Columns are the key column
// followed by the sorted union of top level fields. limit <= 0 returns all.
func (b *Browser) Rows(ctx context.Context, table string, limit int) (Page, error) {
	ok, err := b.known(table)
	if err != nil {
		return Page{}, err
	}
	if !ok {
		return Page{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	page := Page{Table: table, Rows: []map[string]interface{}{}}
	fields := map[string]struct{}{}
	err = b.backend.ForEach(table, func(key string, value []byte) error {
		page.Total++
		if limit > 0 && len(page.Rows) >= limit {
			return nil
		}
		row := map[string]interface{}{}
		if err := json.Unmarshal(value, &row); err != nil || row == nil {
			row = map[string]interface{}{RawColumn: string(value)}
		}
		for k := range row {
			fields[k] = struct{}{}
		}
		row[KeyColumn] = key
		page.Rows = append(page.Rows, row)
		return nil
	})
	if err != nil {
		return Page{}, fmt.Errorf("%w: read %s: %v", storage.ErrStorage, table, err)
	}

	delete(fields, KeyColumn)
	cols := make([]string, 0, len(fields))
	for f := range fields {
		cols = append(cols, f)
	}
	sort.Strings(cols)
	page.Columns = append([]string{KeyColumn}, cols...)
	return page, nil
}
