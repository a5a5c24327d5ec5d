package models

// Pattern is one member of a tolerant regex family derived from a seed
// substring by the example-bug finder. Structural patterns carry a higher
// weight than field-presence patterns; a page only counts as a match when a
// structural pattern fired.
type Pattern struct {
	Name   string  `json:"name"`
	Regex  string  `json:"regex"`
	Weight float64 `json:"weight"`
}
