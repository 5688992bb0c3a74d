package features

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const trainingCSV = `Year,STNAME,DISTNAME,Season,N,P,K,T2M_MAX,Crop,Yield_tonnes_per_hectare
2001,Punjab,Ludhiana,Rabi,90,40,40,30.1,WHEAT,4.1
2001,Bihar,Patna,Kharif,80,35,30,33.0,RICE,2.2
2002,Assam,Jorhat,Kharif,70,30,35,31.4,RICE,2.5
2002,Kerala,Kochi,Whole Year,60,20,50,32.2,COCO,1.1
2003,Punjab,Patiala,Kharif,95,45,40,35.2,COTN,1.8
`

func mustDataset(t *testing.T) *Dataset {
	t.Helper()
	d, err := ReadDataset(strings.NewReader(trainingCSV))
	if err != nil {
		t.Fatalf("ReadDataset() error = %v", err)
	}
	return d
}

func mustSchema(t *testing.T) *Schema {
	t.Helper()
	opts := DefaultDeriveOptions()
	opts.KeepTarget = func(code string) bool { return code != "COCO" }
	schema, _, err := DeriveSchema(mustDataset(t), opts)
	if err != nil {
		t.Fatalf("DeriveSchema() error = %v", err)
	}
	return schema
}

func TestDeriveSchema(t *testing.T) {
	opts := DefaultDeriveOptions()
	opts.KeepTarget = func(code string) bool { return code != "COCO" }
	schema, regions, err := DeriveSchema(mustDataset(t), opts)
	if err != nil {
		t.Fatalf("DeriveSchema() error = %v", err)
	}
	// Assam and Kharif are the dropped first levels; Kerala and Whole Year
	// only occur on a filtered row.
	wantCols := []string{"Year", "N", "P", "K", "T2M_MAX", "STNAME_Bihar", "STNAME_Punjab", "Season_Rabi"}
	if got := schema.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Errorf("Columns() = %v, want %v", got, wantCols)
	}
	if want := []string{"Assam", "Bihar", "Punjab"}; !reflect.DeepEqual(regions, want) {
		t.Errorf("regions = %v, want %v", regions, want)
	}
}

func TestTrainingSet(t *testing.T) {
	opts := DefaultDeriveOptions()
	opts.KeepTarget = func(code string) bool { return code != "COCO" }
	x, y, err := TrainingSet(mustDataset(t), mustSchema(t), opts)
	if err != nil {
		t.Fatalf("TrainingSet() error = %v", err)
	}
	if want := []string{"WHEAT", "RICE", "RICE", "COTN"}; !reflect.DeepEqual(y, want) {
		t.Errorf("labels = %v, want %v", y, want)
	}
	t2m := 30.1
	// Year, N, P, K, T2M_MAX, STNAME_Bihar, STNAME_Punjab, Season_Rabi
	want := []float32{2001, 90, 40, 40, float32(t2m), 0, 1, 1}
	if len(x) != 4 || !reflect.DeepEqual(x[0], want) {
		t.Errorf("first row = %v, want %v", x, want)
	}
	// Assam and Kharif are the dropped levels and encode as all zeros.
	if x[2][5] != 0 || x[2][6] != 0 || x[2][7] != 0 {
		t.Errorf("Assam Kharif row = %v", x[2])
	}

	bad := mustDataset(t)
	bad.Rows[0][4] = "ninety"
	if _, _, err := TrainingSet(bad, mustSchema(t), opts); err == nil {
		t.Errorf("TrainingSet() with non numeric N, want error")
	}
}

func TestDeriveSchemaMissingColumn(t *testing.T) {
	d := &Dataset{Header: []string{"N", "P"}}
	if _, _, err := DeriveSchema(d, DefaultDeriveOptions()); err == nil {
		t.Errorf("DeriveSchema() without target column, want error")
	}
}

func TestNewSchemaDuplicate(t *testing.T) {
	if _, err := NewSchema([]string{"N", "N"}); err == nil {
		t.Errorf("NewSchema() with duplicate column, want error")
	}
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Record
		wantErr bool
	}{
		{
			name: "mixed",
			body: `{"N": 90, "P": "40", "STNAME": "Punjab", "irrigated": true, "note": null}`,
			want: Record{"N": Number(90), "P": Number(40), "STNAME": Category("Punjab"), "irrigated": Number(1)},
		},
		{name: "empty object", body: `{}`, want: Record{}},
		{name: "empty body", body: ``, want: Record{}},
		{name: "nested", body: `{"N": {"value": 1}}`, wantErr: true},
		{name: "array", body: `{"N": [1, 2]}`, wantErr: true},
		{name: "not json", body: `N=1`, wantErr: true},
		{name: "top level array", body: `[1, 2]`, wantErr: true},
		{name: "trailing garbage", body: `{"N": 1} garbage`, wantErr: true},
		{name: "second object", body: `{"N": 1} {"P": 2}`, wantErr: true},
		{name: "trailing whitespace", body: "{\"N\": 1}\n ", want: Record{"N": Number(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecord(strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeRecord() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeRecord() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeRecordErrorKinds(t *testing.T) {
	if _, err := DecodeRecord(strings.NewReader(`{"N": [1]}`)); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("nested value error = %v, want ErrUnsupportedValue", err)
	}
	if _, err := DecodeRecord(strings.NewReader(`{"N": 1}x`)); !errors.Is(err, ErrTrailingData) {
		t.Errorf("trailing data error = %v, want ErrTrailingData", err)
	}
}

func TestAlign(t *testing.T) {
	schema := mustSchema(t)
	tests := []struct {
		name string
		rec  Record
		want []float32
	}{
		{
			name: "empty record is all zeros",
			rec:  Record{},
			want: []float32{0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "numeric and known levels",
			rec:  Record{"N": Number(90), "K": Number(40), "STNAME": Category("Punjab"), "Season": Category("Rabi")},
			want: []float32{0, 90, 0, 40, 0, 0, 1, 1},
		},
		{
			name: "dropped first level encodes as all zeros",
			rec:  Record{"STNAME": Category("Assam")},
			want: []float32{0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "unknown level and unknown field are ignored",
			rec:  Record{"STNAME": Category("Atlantis"), "soil_color": Category("red"), "ph": Number(6.5), "P": Number(20)},
			want: []float32{0, 0, 20, 0, 0, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(schema, tt.rec)
			if len(got) != schema.Len() {
				t.Fatalf("len(Align()) = %d, want %d", len(got), schema.Len())
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Align() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlignIdempotent(t *testing.T) {
	schema := mustSchema(t)
	aligned := Align(schema, Record{"N": Number(90), "T2M_MAX": Number(31.5), "STNAME": Category("Bihar")})

	again := AlignVector(schema, schema.Columns(), aligned)
	if !reflect.DeepEqual(again, aligned) {
		t.Errorf("AlignVector(aligned) = %v, want %v", again, aligned)
	}

	rec := Record{}
	for i, col := range schema.Columns() {
		rec[col] = Number(float64(aligned[i]))
	}
	if got := Align(schema, rec); !reflect.DeepEqual(got, aligned) {
		t.Errorf("Align(schema-exact record) = %v, want %v", got, aligned)
	}
}

func TestAlignVectorReorders(t *testing.T) {
	schema := mustSchema(t)
	got := AlignVector(schema, []string{"Season_Rabi", "extra", "Year"}, []float32{1, 7, 2024})
	want := []float32{2024, 0, 0, 0, 0, 0, 0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AlignVector() = %v, want %v", got, want)
	}
}

func TestDropped(t *testing.T) {
	schema := mustSchema(t)
	got := Dropped(schema, Record{"STNAME": Category("Atlantis"), "N": Number(1), "ph": Number(7)})
	want := []string{"STNAME_Atlantis", "ph"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dropped() = %v, want %v", got, want)
	}
}
