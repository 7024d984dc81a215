package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/personae/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "jhean",
		TypeQuery: "fuzzy",
		Total:     1,
		QueryTime: 3,
		Hits:      []*models.SearchHit{{ID: 1, IDEndp: "person_1"}},
		Results: []*models.Person{{
			ID: 1, IDEndp: "person_1", PrefLabel: "Jean Morain",
			ForenameAltLabels: "jehan;johan", SurnameAltLabels: "morain",
		}},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.TypeQuery != "fuzzy" || decoded.Total != 1 {
		t.Errorf("decoded type_query=%q total=%d", decoded.TypeQuery, decoded.Total)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].IDEndp != "person_1" {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`Found 1 persons for "jhean" (fuzzy)`, "1. Jean Morain  [person_1, id 1]", "forenames: jehan;johan"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{Query: "xyz", TypeQuery: "exact"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 persons") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteStatus_SortedKeys(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatus(&buf, map[string]interface{}{"persons": 2, "index_documents": 2}, OutputText); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "index_documents:") {
		t.Errorf("unexpected status output: %q", buf.String())
	}
}

func TestWritePerson(t *testing.T) {
	var buf bytes.Buffer
	p := &models.Person{ID: 3, IDEndp: "person_3", PrefLabel: "Pierre Morin", Comment: strings.Repeat("x", 200)}
	if err := WritePerson(&buf, p, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Pierre Morin  [person_3, id 3]") || !strings.Contains(buf.String(), "...") {
		t.Errorf("unexpected person output: %s", buf.String())
	}
}
