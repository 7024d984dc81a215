package models

// SearchHit identifies one matching index document.
type SearchHit struct {
	ID     int64  `json:"id"`
	IDEndp string `json:"_id_endp"`
}

// SearchResponse is the response for a person search.
// Results holds the resolved persons in hit order; hits whose person no longer
// exists in storage are dropped, so Total may be lower than len(Hits).
type SearchResponse struct {
	Query     string       `json:"query"`
	TypeQuery string       `json:"type_query"`
	Total     int          `json:"total"`
	Hits      []*SearchHit `json:"hits"`
	Results   []*Person    `json:"results"`
	QueryTime int64        `json:"query_time_ms"`
}
