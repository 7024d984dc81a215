// Package cli provides output helpers for the personae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d persons for %q (%s) in %dms\n\n",
		response.Total, response.Query, response.TypeQuery, response.QueryTime)
	for i, p := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s  [%s, id %d]\n", i+1, p.PrefLabel, p.IDEndp, p.ID)
		writeLabels(w, p)
		fmt.Fprintln(w)
	}
	return nil
}

// WritePerson writes a single person to w in the given format.
func WritePerson(w io.Writer, p *models.Person, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, p)
	}
	fmt.Fprintf(w, "%s  [%s, id %d]\n", p.PrefLabel, p.IDEndp, p.ID)
	writeLabels(w, p)
	return nil
}

func writeLabels(w io.Writer, p *models.Person) {
	if p.ForenameAltLabels != "" {
		fmt.Fprintf(w, "   forenames: %s\n", p.ForenameAltLabels)
	}
	if p.SurnameAltLabels != "" {
		fmt.Fprintf(w, "   surnames:  %s\n", p.SurnameAltLabels)
	}
	if p.Comment != "" {
		fmt.Fprintf(w, "   %s\n", utils.Truncate(p.Comment, 120))
	}
}

// WriteStatus writes key/value status lines sorted by key, or JSON.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-18s %v\n", k+":", status[k])
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
