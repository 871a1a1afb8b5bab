package extract

import (
	"reflect"
	"testing"
)

func TestExtractEntitiesPersonsAndOrgs(t *testing.T) {
	text := "John Doe met with Acme Holdings about the wire. " +
		"J. Doe signed for FBI review. John Doe confirmed."

	got := ExtractEntities(text, nil)

	want := []Mention{
		{Text: "Acme Holdings", Label: LabelOrg, Count: 1},
		{Text: "FBI", Label: LabelOrg, Count: 1},
		{Text: "J. Doe", Label: LabelPerson, Count: 1},
		{Text: "John Doe", Label: LabelPerson, Count: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mentions:\n want=%v\n got=%v", want, got)
	}
}

func TestExtractEntitiesHonorific(t *testing.T) {
	got := ExtractEntities("Dr. Smith reviewed the file.", nil)
	found := false
	for _, m := range got {
		if m.Text == "Smith" && m.Label == LabelPerson {
			found = true
		}
	}
	if !found {
		t.Fatalf("honorific name not extracted: %v", got)
	}
}

func TestExtractEntitiesFilters(t *testing.T) {
	text := "Total Amount was sent to John Doe. The 12345 reference."

	got := ExtractEntities(text, []string{"total amount"})
	for _, m := range got {
		if m.Text == "Total Amount" {
			t.Fatalf("blocklisted mention survived: %v", got)
		}
		if m.Text == "12345" {
			t.Fatalf("numeric mention survived: %v", got)
		}
	}
}

func TestExtractEntitiesSentenceStartNoise(t *testing.T) {
	got := ExtractEntities("However the payment cleared. This matters.", nil)
	if len(got) != 0 {
		t.Fatalf("sentence-start words should not become entities: %v", got)
	}
}

func TestExtractEntitiesDeterministicOrder(t *testing.T) {
	text := "Zeta Corp paid Alpha Bank. Zeta Corp again."
	a := ExtractEntities(text, nil)
	b := ExtractEntities(text, nil)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extraction must be deterministic")
	}
	if len(a) >= 2 && a[0].Text > a[1].Text {
		t.Fatalf("output must be sorted by text: %v", a)
	}
}
