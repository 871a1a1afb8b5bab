package extract

import (
	"reflect"
	"testing"
)

func TestEncodeSparseDeterministic(t *testing.T) {
	a := EncodeSparse("The quick brown fox jumps over the lazy dog")
	b := EncodeSparse("The quick brown fox jumps over the lazy dog")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same text must encode identically")
	}
	if len(a.Indices) == 0 || len(a.Indices) != len(a.Values) {
		t.Fatalf("indices/values parity: %d vs %d", len(a.Indices), len(a.Values))
	}
	for i := 1; i < len(a.Indices); i++ {
		if a.Indices[i] <= a.Indices[i-1] {
			t.Fatalf("indices must be sorted and unique: %v", a.Indices)
		}
	}
}

func TestEncodeSparseTermFrequencySaturates(t *testing.T) {
	once := EncodeSparse("confidential")
	many := EncodeSparse("confidential confidential confidential confidential")
	if len(once.Values) != 1 || len(many.Values) != 1 {
		t.Fatalf("single-term encodings: %v %v", once, many)
	}
	if many.Values[0] <= once.Values[0] {
		t.Fatalf("repeated term should weigh more: %v vs %v", many.Values[0], once.Values[0])
	}
	// Saturation: weight is bounded by k1+1.
	if many.Values[0] >= lexicalK1+1 {
		t.Fatalf("weight must saturate below %v, got %v", lexicalK1+1, many.Values[0])
	}
}

func TestEncodeSparseEmpty(t *testing.T) {
	v := EncodeSparse("  .,;: a ! ")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("noise-only text should encode empty: %v", v)
	}
}
