package extract

// Item is one candidate budget line as produced by the structuring backend.
// Numeric fields are pointers: an absent value stays nil and is persisted as
// NULL, never as a fabricated zero.
type Item struct {
	Description string   `json:"description"`
	Unit        string   `json:"unit,omitempty"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Total       *float64 `json:"total"`
	Confidence  float64  `json:"confidence,omitempty"`
	RawLine     string   `json:"raw_line,omitempty"`
}

type Payload struct {
	Items   []Item `json:"items"`
	Summary string `json:"summary,omitempty"`
}
