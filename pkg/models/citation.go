package models

// Citation is one source reference in the final answer. ID is a
// positive integer assigned in citation order: sources[i].ID == i+1.
type Citation struct {
	ID         int     `json:"id"`
	DocumentID string  `json:"document_id,omitempty"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	ShortForm  string  `json:"short_form,omitempty"`
	Locator    string  `json:"locator,omitempty"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Source     string  `json:"source,omitempty"`
	Authority  string  `json:"authority,omitempty"`
	Year       int     `json:"year,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
