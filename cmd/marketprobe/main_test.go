package main

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Brownie44l1/farm-api/internal/gateway"
)

type staticSource struct {
	records []gateway.Record
	err     error
}

func (s staticSource) Records(ctx context.Context) ([]gateway.Record, error) {
	return s.records, s.err
}

func TestProbe(t *testing.T) {
	records := []gateway.Record{
		{"state": "Punjab", "market": "Ludhiana", "commodity": "Wheat", "modal_price": "2300"},
		{"state": "Chattisgarh", "market": "Raipur", "commodity": "Rice", "modal_price": "2100"},
		{"state": "Punjab", "market": "Amritsar", "commodity": "Maize", "modal_price": "1900"},
	}
	var out bytes.Buffer
	if err := probe(context.Background(), &out, staticSource{records: records}, 2); err != nil {
		t.Fatalf("probe() error = %v", err)
	}
	got := out.String()
	for _, s := range []string{"fetched 3 records", "Ludhiana", "Raipur", "unique state names:", "  Chattisgarh"} {
		if !strings.Contains(got, s) {
			t.Errorf("output missing %q:\n%s", s, got)
		}
	}
	if strings.Contains(got, "Amritsar") {
		t.Errorf("output includes rows beyond the sample:\n%s", got)
	}
}

func TestProbeFailures(t *testing.T) {
	tests := []struct {
		name string
		src  staticSource
		want string
	}{
		{"fetch error", staticSource{err: errors.New("status=403")}, "fetch market records"},
		{"no records", staticSource{}, "no records"},
		{"no state field", staticSource{records: []gateway.Record{{"market": "Raipur"}}}, "'state'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := probe(context.Background(), &bytes.Buffer{}, tt.src, 5)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("probe() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestUniqueStates(t *testing.T) {
	got, ok := uniqueStates([]gateway.Record{{"state": "Goa"}, {"state": "Bihar"}, {"state": "Goa"}, {"market": "x"}})
	if !ok || !reflect.DeepEqual(got, []string{"Goa", "Bihar"}) {
		t.Errorf("uniqueStates() = %v, %v", got, ok)
	}
}
