package features

import "sort"

// Align shapes rec into the exact column order of schema. Schema columns the
// record does not provide are zero; encoded columns the schema does not know,
// such as an unseen categorical level, are dropped without error.
func Align(schema *Schema, rec Record) []float32 {
	out := make([]float32, schema.Len())
	for col, v := range Encode(rec) {
		if i, ok := schema.Index(col); ok {
			out[i] = v
		}
	}
	return out
}

// AlignVector reindexes an already encoded row given as parallel column and
// value slices.
func AlignVector(schema *Schema, columns []string, values []float32) []float32 {
	out := make([]float32, schema.Len())
	for j, col := range columns {
		if j >= len(values) {
			break
		}
		if i, ok := schema.Index(col); ok {
			out[i] = values[j]
		}
	}
	return out
}

// Dropped lists the encoded columns of rec that Align ignores, sorted.
func Dropped(schema *Schema, rec Record) []string {
	var out []string
	for col := range Encode(rec) {
		if _, ok := schema.Index(col); !ok {
			out = append(out, col)
		}
	}
	sort.Strings(out)
	return out
}
