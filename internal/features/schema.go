package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Schema is the ordered feature column layout of the crop model.
type Schema struct {
	columns []string
	index   map[string]int
}

func NewSchema(columns []string) (*Schema, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, ok := index[col]; ok {
			return nil, fmt.Errorf("duplicate feature column %q", col)
		}
		index[col] = i
	}
	return &Schema{columns: append([]string(nil), columns...), index: index}, nil
}

func (s *Schema) Len() int {
	return len(s.columns)
}

func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s *Schema) Index(col string) (int, bool) {
	i, ok := s.index[col]
	return i, ok
}

// Dataset is a header plus string rows as read from the training CSV.
type Dataset struct {
	Header []string
	Rows   [][]string
}

func ReadDataset(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read dataset: no header")
	}
	return &Dataset{Header: records[0], Rows: records[1:]}, nil
}

func (d *Dataset) column(name string) int {
	for i, h := range d.Header {
		if h == name {
			return i
		}
	}
	return -1
}

type DeriveOptions struct {
	// Target is the label column; it is never a feature.
	Target string
	// Region is the column whose distinct values are offered to clients.
	Region string
	// Categorical columns are one-hot encoded with the first level dropped.
	Categorical []string
	// Drop lists non-feature columns. Missing ones are ignored.
	Drop []string
	// KeepTarget filters rows by label. Nil keeps every row.
	KeepTarget func(string) bool
}

func DefaultDeriveOptions() DeriveOptions {
	return DeriveOptions{
		Target:      "Crop",
		Region:      "STNAME",
		Categorical: []string{"STNAME", "Season"},
		Drop: []string{
			"Yield_tonnes_per_hectare", "date", "DISTNAME", "Area_hectares", "Production_tonnes",
			"Latitude", "Longitude", "latitude", "longitude", "Crop", "Year.1",
		},
	}
}

// DeriveSchema rebuilds the training-time feature layout: the remaining plain
// columns in source order, then for each categorical column its sorted levels
// after the first as `<column>_<level>`. It also returns the sorted distinct
// region values of the kept rows.
func DeriveSchema(d *Dataset, opts DeriveOptions) (*Schema, []string, error) {
	target := d.column(opts.Target)
	if target < 0 {
		return nil, nil, fmt.Errorf("dataset has no %q column", opts.Target)
	}

	rows := keptRows(d, target, opts)

	skip := map[string]bool{opts.Target: true}
	for _, col := range opts.Drop {
		skip[col] = true
	}
	encoded := map[string]bool{}
	for _, col := range opts.Categorical {
		if d.column(col) < 0 {
			return nil, nil, fmt.Errorf("dataset has no categorical column %q", col)
		}
		encoded[col] = true
	}

	columns := []string{}
	for _, h := range d.Header {
		if skip[h] || encoded[h] {
			continue
		}
		columns = append(columns, h)
	}
	for _, col := range opts.Categorical {
		levels := distinct(rows, d.column(col))
		for _, level := range levels[min(1, len(levels)):] {
			columns = append(columns, col+"_"+level)
		}
	}

	schema, err := NewSchema(columns)
	if err != nil {
		return nil, nil, err
	}

	var regions []string
	if i := d.column(opts.Region); i >= 0 {
		regions = distinct(rows, i)
	}
	return schema, regions, nil
}

// keptRows returns the rows with a label accepted by opts.KeepTarget.
func keptRows(d *Dataset, target int, opts DeriveOptions) [][]string {
	rows := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if target >= len(row) {
			continue
		}
		if opts.KeepTarget != nil && !opts.KeepTarget(row[target]) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// TrainingSet encodes the kept rows of d against schema and returns them with
// their labels. Empty cells are zero; any other non-numeric cell outside the
// categorical columns is an error.
func TrainingSet(d *Dataset, schema *Schema, opts DeriveOptions) ([][]float32, []string, error) {
	target := d.column(opts.Target)
	if target < 0 {
		return nil, nil, fmt.Errorf("dataset has no %q column", opts.Target)
	}
	categorical := map[string]bool{}
	for _, col := range opts.Categorical {
		categorical[col] = true
	}

	rows := keptRows(d, target, opts)
	x := make([][]float32, 0, len(rows))
	y := make([]string, 0, len(rows))
	for n, row := range rows {
		rec := make(Record, len(d.Header))
		for i, h := range d.Header {
			if i >= len(row) || i == target {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if categorical[h] {
				rec[h] = Category(row[i])
				continue
			}
			if _, ok := schema.Index(h); !ok || cell == "" {
				continue
			}
			f, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %q: %w", n+1, h, err)
			}
			rec[h] = Number(f)
		}
		x = append(x, Align(schema, rec))
		y = append(y, row[target])
	}
	return x, y, nil
}

// distinct returns the sorted non-empty values of column i.
func distinct(rows [][]string, i int) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, row := range rows {
		if i >= len(row) || row[i] == "" || seen[row[i]] {
			continue
		}
		seen[row[i]] = true
		out = append(out, row[i])
	}
	sort.Strings(out)
	return out
}
