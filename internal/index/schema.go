// Package index provides the on-disk person full-text index: store and generation
// lifecycle, the single-writer protocol, and the exact / fuzzy query engine, on Bleve.
package index

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/personae/pkg/utils"
)

// FieldType is the indexing behavior of a schema field.
type FieldType string

const (
	// FieldID is stored verbatim and matched by equality only.
	FieldID FieldType = "id"
	// FieldText is tokenized, lowercased and eligible for fuzzy matching.
	FieldText FieldType = "text"
)

// Document field names.
const (
	FieldNameID                = "id"
	FieldNameIDEndp            = "id_endp"
	FieldNamePrefLabel         = "pref_label"
	FieldNameForenameAltLabels = "forename_alt_labels"
	FieldNameSurnameAltLabels  = "surname_alt_labels"

	// sortField holds the numeric id for deterministic tie-breaking. Never stored.
	sortField = "id_num"
)

// TextAnalyzer is the analyzer of text fields: unicode word segmentation and lowercasing,
// nothing else (no stop words, no stemming).
const TextAnalyzer = "person_text"

// Field declares one document field.
type Field struct {
	Name   string    `yaml:"name"`
	Type   FieldType `yaml:"type"`
	Stored bool      `yaml:"stored"`
}

// Schema declares the document shape shared by writers and the query engine.
type Schema struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// PersonSchema returns the schema of the person index.
func PersonSchema() Schema {
	return Schema{
		Name: "person",
		Fields: []Field{
			{Name: FieldNameID, Type: FieldID, Stored: true},
			{Name: FieldNameIDEndp, Type: FieldText, Stored: true},
			{Name: FieldNamePrefLabel, Type: FieldText, Stored: true},
			{Name: FieldNameForenameAltLabels, Type: FieldText, Stored: true},
			{Name: FieldNameSurnameAltLabels, Type: FieldText, Stored: true},
		},
	}
}

// documentFields are the field names a Document can carry.
var documentFields = map[string]struct{}{
	FieldNameID:                {},
	FieldNameIDEndp:            {},
	FieldNamePrefLabel:         {},
	FieldNameForenameAltLabels: {},
	FieldNameSurnameAltLabels:  {},
}

// Validate checks field names and types. The schema must declare exactly one
// identifier field, and it must be the "id" field.
func (s Schema) Validate() error {
	if s.Name == "" {
		return &SchemaError{Reason: "schema name is empty"}
	}
	if len(s.Fields) == 0 {
		return &SchemaError{Reason: "schema declares no fields"}
	}
	seen := make(map[string]struct{}, len(s.Fields))
	ids := 0
	for _, f := range s.Fields {
		if f.Name == "" {
			return &SchemaError{Reason: "field with empty name"}
		}
		if f.Name == sortField {
			return &SchemaError{Field: f.Name, Reason: "reserved field name"}
		}
		if _, dup := seen[f.Name]; dup {
			return &SchemaError{Field: f.Name, Reason: "duplicate field name"}
		}
		seen[f.Name] = struct{}{}
		if _, ok := documentFields[f.Name]; !ok {
			return &SchemaError{Field: f.Name, Reason: "unsupported field"}
		}
		switch f.Type {
		case FieldID:
			ids++
			if f.Name != FieldNameID {
				return &SchemaError{Field: f.Name, Reason: "only the id field may be an identifier"}
			}
		case FieldText:
		default:
			return &SchemaError{Field: f.Name, Reason: fmt.Sprintf("unsupported field type %q", f.Type)}
		}
	}
	if ids != 1 {
		return &SchemaError{Field: FieldNameID, Reason: "schema must declare the id field as its identifier"}
	}
	return nil
}

// TextFields returns the names of tokenized fields in declaration order.
func (s Schema) TextFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Type == FieldText {
			out = append(out, f.Name)
		}
	}
	return out
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasTextField reports whether name is a tokenized field of the schema.
func (s Schema) HasTextField(name string) bool {
	f, ok := s.Field(name)
	return ok && f.Type == FieldText
}

// IDField returns the name of the identifier field.
func (s Schema) IDField() string {
	for _, f := range s.Fields {
		if f.Type == FieldID {
			return f.Name
		}
	}
	return ""
}

// storedFields returns the names of stored fields.
func (s Schema) storedFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Stored {
			out = append(out, f.Name)
		}
	}
	return out
}

// indexMapping builds the Bleve mapping for the schema.
func (s Schema) indexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(TextAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []interface{}{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	for _, f := range s.Fields {
		var fm *mapping.FieldMapping
		if f.Type == FieldID {
			fm = bleve.NewKeywordFieldMapping()
			fm.Analyzer = keyword.Name
		} else {
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = TextAnalyzer
		}
		fm.Store = f.Stored
		fm.IncludeInAll = false
		docMapping.AddFieldMappingsAt(f.Name, fm)
	}
	num := bleve.NewNumericFieldMapping()
	num.Store = false
	num.IncludeInAll = false
	docMapping.AddFieldMappingsAt(sortField, num)

	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = TextAnalyzer
	im.IndexDynamic = false
	im.StoreDynamic = false
	return im, nil
}

// Document is the indexed representation of one person record.
type Document struct {
	ID                int64
	IDEndp            string
	PrefLabel         string
	ForenameAltLabels string
	SurnameAltLabels  string
}

// DocumentFromFields builds a Document with the label fields normalized the way queries are.
// The public identifier is kept as given; the analyzer still lowercases its terms.
func DocumentFromFields(id int64, idEndp, prefLabel, forenameAlt, surnameAlt string) Document {
	return Document{
		ID:                id,
		IDEndp:            idEndp,
		PrefLabel:         utils.NormalizeText(prefLabel),
		ForenameAltLabels: utils.NormalizeText(forenameAlt),
		SurnameAltLabels:  utils.NormalizeText(surnameAlt),
	}
}

// Key returns the Bleve document id, the decimal record id.
func (d Document) Key() string {
	return strconv.FormatInt(d.ID, 10)
}

// value returns the content of the named field.
func (d Document) value(name string) string {
	switch name {
	case FieldNameID:
		return d.Key()
	case FieldNameIDEndp:
		return d.IDEndp
	case FieldNamePrefLabel:
		return d.PrefLabel
	case FieldNameForenameAltLabels:
		return d.ForenameAltLabels
	case FieldNameSurnameAltLabels:
		return d.SurnameAltLabels
	}
	return ""
}

// fields renders the document restricted to the schema, plus the sort key.
func (d Document) fields(s Schema) map[string]interface{} {
	out := make(map[string]interface{}, len(s.Fields)+1)
	for _, f := range s.Fields {
		out[f.Name] = d.value(f.Name)
	}
	out[sortField] = float64(d.ID)
	return out
}
