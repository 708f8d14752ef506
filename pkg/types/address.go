package types

import "strings"

// Address is the postal snapshot stored on an order. It is persisted as jsonb
// so later edits to a user's address book never change a placed order.
type Address struct {
	Recipient  string  `json:"recipient"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Validate reports the first missing required field, or "".
func (a Address) Validate() string {
	switch {
	case strings.TrimSpace(a.Recipient) == "":
		return "recipient"
	case strings.TrimSpace(a.Line1) == "":
		return "line1"
	case strings.TrimSpace(a.City) == "":
		return "city"
	case strings.TrimSpace(a.Country) == "":
		return "country"
	}
	return ""
}
