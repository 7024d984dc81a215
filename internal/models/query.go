package models

// SearchQuery is a person search request as received from the API or CLI.
type SearchQuery struct {
	Query  string   `json:"query"`
	Type   string   `json:"type_query"`
	Fields []string `json:"fields,omitempty"`
	// Limit caps the number of results. Zero means the configured default.
	Limit int `json:"limit,omitempty"`
}
