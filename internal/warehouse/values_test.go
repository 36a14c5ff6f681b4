package warehouse

import (
	"math/big"
	"testing"
	"time"
)

func TestNormalizeValueConvertsDecimalsAndTimes(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		typeName string
		want     any
	}{
		{name: "nil", value: nil, want: nil},
		{name: "fixed decimal text", value: "1234.50", typeName: "FIXED", want: 1234.5},
		{name: "fixed integer text", value: "42", typeName: "FIXED", want: int64(42)},
		{name: "numeric bytes", value: []byte("0.25"), typeName: "NUMERIC", want: 0.25},
		{name: "plain text stays text", value: "42", typeName: "TEXT", want: "42"},
		{name: "bytes become text", value: []byte("Photo"), typeName: "", want: "Photo"},
		{name: "time", value: at, want: "2024-12-31T23:59:00Z"},
		{name: "big rat", value: big.NewRat(3, 4), want: 0.75},
		{name: "big int", value: big.NewInt(7), want: int64(7)},
		{name: "bool", value: true, want: true},
		{name: "unparseable numeric", value: "n/a", typeName: "NUMBER", want: "n/a"},
	}
	for _, tc := range tests {
		got := normalizeValue(tc.value, tc.typeName)
		if got != tc.want {
			t.Fatalf("%s: normalizeValue() = %#v, want %#v", tc.name, got, tc.want)
		}
	}
}
