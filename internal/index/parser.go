package index

import (
	"strings"
	"unicode"
)

type occur int

const (
	occurShould occur = iota
	occurMust
	occurMustNot
)

// clause is one parsed unit of an exact query.
type clause struct {
	occur  occur
	field  string // empty: every searched field
	text   string
	phrase bool
}

// parseExact splits a normalized exact query into clauses. Grammar, whitespace separated:
//
//	clause    = [ "+" | "-" ] [ field ":" ] ( word | '"' phrase '"' )
//
// field is recognized only when it names a schema field; otherwise the colon is part of the word.
func parseExact(q string, schema Schema) ([]clause, error) {
	r := []rune(q)
	var out []clause
	i := 0
	for i < len(r) {
		if unicode.IsSpace(r[i]) {
			i++
			continue
		}
		c := clause{occur: occurShould}
		switch r[i] {
		case '+':
			c.occur = occurMust
			i++
		case '-':
			c.occur = occurMustNot
			i++
		}
		if c.occur != occurShould && (i == len(r) || unicode.IsSpace(r[i])) {
			return nil, &QueryError{Query: q, Reason: "operator without a term"}
		}

		if name, n := fieldPrefix(r[i:]); n > 0 {
			if _, ok := schema.Field(name); ok {
				c.field = name
				i += n
				if i == len(r) || unicode.IsSpace(r[i]) {
					return nil, &QueryError{Query: q, Reason: "field " + name + " without a term"}
				}
			}
		}

		if r[i] == '"' {
			end := i + 1
			for end < len(r) && r[end] != '"' {
				end++
			}
			if end == len(r) {
				return nil, &QueryError{Query: q, Reason: "unbalanced quote"}
			}
			c.text = strings.TrimSpace(string(r[i+1 : end]))
			c.phrase = true
			i = end + 1
			if i < len(r) && !unicode.IsSpace(r[i]) {
				return nil, &QueryError{Query: q, Reason: "closing quote must be followed by whitespace"}
			}
		} else {
			start := i
			for i < len(r) && !unicode.IsSpace(r[i]) {
				if r[i] == '"' {
					return nil, &QueryError{Query: q, Reason: "unexpected quote inside a word"}
				}
				i++
			}
			c.text = string(r[start:i])
		}

		if c.text == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// fieldPrefix returns the name of a leading "name:" qualifier and the number of runes it spans.
func fieldPrefix(r []rune) (string, int) {
	for j, ch := range r {
		switch {
		case ch == ':':
			if j == 0 {
				return "", 0
			}
			return string(r[:j]), j + 1
		case ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch):
		default:
			return "", 0
		}
	}
	return "", 0
}
